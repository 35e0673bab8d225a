package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsFeed      int64
	errorsProcessor int64
	warnsFeed       int64
	warnsProcessor  int64
	framesRead      int64
	eventsProcessed int64
	sinkWrites      int64
	mediaJobs       int64
	channels        sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "feed") {
		atomic.AddInt64(&warnsFeed, 1)
	} else if strings.Contains(component, "processor") {
		atomic.AddInt64(&warnsProcessor, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "feed") {
		atomic.AddInt64(&errorsFeed, 1)
	} else if strings.Contains(component, "processor") {
		atomic.AddInt64(&errorsProcessor, 1)
	}
}

func IncrementFrameRead(size int) {
	atomic.AddInt64(&framesRead, 1)
	recordChannel("feed_ws", size)
}

func IncrementEventProcessed() {
	atomic.AddInt64(&eventsProcessed, 1)
}

func IncrementSinkWrite(size int) {
	atomic.AddInt64(&sinkWrites, 1)
	recordChannel("sink_write", size)
}

func IncrementMediaJob() {
	atomic.AddInt64(&mediaJobs, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of runtime and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	fields := Fields{
		"errors_feed":      atomic.LoadInt64(&errorsFeed),
		"errors_processor": atomic.LoadInt64(&errorsProcessor),
		"warns_feed":       atomic.LoadInt64(&warnsFeed),
		"warns_processor":  atomic.LoadInt64(&warnsProcessor),
		"frames_read":      atomic.LoadInt64(&framesRead),
		"events_processed": atomic.LoadInt64(&eventsProcessed),
		"sink_writes":      atomic.LoadInt64(&sinkWrites),
		"media_jobs":       atomic.LoadInt64(&mediaJobs),
		"goroutines":       runtime.NumGoroutine(),
		"channels":         channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("FramesRead"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&framesRead)))},
		{MetricName: aws.String("EventsProcessed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&eventsProcessed)))},
		{MetricName: aws.String("SinkWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&sinkWrites)))},
		{MetricName: aws.String("MediaJobs"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&mediaJobs)))},
		{MetricName: aws.String("ErrorsFeed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsFeed)))},
		{MetricName: aws.String("ErrorsProcessor"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsProcessor)))},
	}
	publishMetrics(ctx, data)
}
