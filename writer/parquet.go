package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "matchflow/config"
	"matchflow/internal/models"
	"matchflow/logger"
)

const archiveKeySeparator = "|"

type parquetMemFile struct {
	buffer *bytes.Buffer
}

func newParquetMemFile() *parquetMemFile {
	return &parquetMemFile{buffer: &bytes.Buffer{}}
}

func (m *parquetMemFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *parquetMemFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *parquetMemFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *parquetMemFile) Read([]byte) (int, error)                  { return 0, io.EOF }
func (m *parquetMemFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *parquetMemFile) Close() error                              { return nil }
func (m *parquetMemFile) Bytes() []byte                             { return m.buffer.Bytes() }

// enrichedRow defines the schema for enriched events stored in parquet.
type enrichedRow struct {
	TimeStamp        string  `parquet:"name=time_stamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	PlayerName       string  `parquet:"name=player_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	TeamName         string  `parquet:"name=team_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventTypeName    string  `parquet:"name=event_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	QualifierSummary string  `parquet:"name=qualifiers, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventID          int64   `parquet:"name=event_id, type=INT64"`
	FixtureID        string  `parquet:"name=fixture_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeedName         string  `parquet:"name=feed_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	PeriodID         int32   `parquet:"name=period, type=INT32"`
	TimeMin          int32   `parquet:"name=time_min, type=INT32"`
	TimeSec          int32   `parquet:"name=time_sec, type=INT32"`
	X                float64 `parquet:"name=x, type=DOUBLE"`
	Y                float64 `parquet:"name=y, type=DOUBLE"`
}

// ParquetArchive buffers enriched records and periodically writes them to S3
// as snappy-compressed parquet files partitioned by fixture and day.
type ParquetArchive struct {
	cfg      appconfig.ParquetConfig
	s3Client *s3.Client
	log      *logger.Log

	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	running bool
	mu      sync.Mutex

	buffer map[string][]models.EnrichedRecord
}

// NewParquetArchive initializes the archive. With a bucket configured batches
// go to S3; otherwise they spool to local parquet files under LocalDir.
func NewParquetArchive(cfg appconfig.ParquetConfig) (*ParquetArchive, error) {
	log := logger.GetLogger()
	if !cfg.Enabled {
		return nil, fmt.Errorf("parquet archive is disabled")
	}

	a := &ParquetArchive{
		cfg:    cfg,
		log:    log,
		wg:     &sync.WaitGroup{},
		buffer: make(map[string][]models.EnrichedRecord),
	}

	if cfg.Bucket != "" {
		ctx := context.Background()
		loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		a.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.PathStyle
		})
	}

	log.WithComponent("parquet_archive").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"local_dir":  cfg.LocalDir,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("parquet archive initialized")

	return a, nil
}

// Start launches the periodic flush worker.
func (a *ParquetArchive) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("parquet archive already running")
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	a.wg.Add(1)
	go a.flushLoop()

	a.log.WithComponent("parquet_archive").WithFields(logger.Fields{
		"flush_interval": a.cfg.FlushInterval.String(),
		"max_buffer":     a.cfg.MaxBuffer,
	}).Info("parquet archive started")
	return nil
}

// Stop flushes outstanding buffers and waits for the worker to exit.
func (a *ParquetArchive) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.cancel()
	a.mu.Unlock()

	a.wg.Wait()
	a.flushAll()
	a.log.WithComponent("parquet_archive").Info("parquet archive stopped")
}

// Write buffers one enriched record, flushing its partition when the buffer
// limit is reached.
func (a *ParquetArchive) Write(rec models.EnrichedRecord) {
	key := rec.FixtureID + archiveKeySeparator + time.Now().UTC().Format("2006-01-02")

	a.mu.Lock()
	a.buffer[key] = append(a.buffer[key], rec)
	full := len(a.buffer[key]) >= a.cfg.MaxBuffer
	var batch []models.EnrichedRecord
	if full {
		batch = a.buffer[key]
		delete(a.buffer, key)
	}
	a.mu.Unlock()

	if full {
		a.flush(key, batch)
	}
}

func (a *ParquetArchive) flushLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.flushAll()
		}
	}
}

func (a *ParquetArchive) flushAll() {
	a.mu.Lock()
	pending := a.buffer
	a.buffer = make(map[string][]models.EnrichedRecord)
	a.mu.Unlock()

	for key, batch := range pending {
		a.flush(key, batch)
	}
}

func (a *ParquetArchive) flush(key string, batch []models.EnrichedRecord) {
	if len(batch) == 0 {
		return
	}
	log := a.log.WithComponent("parquet_archive").WithFields(logger.Fields{
		"partition": key,
		"records":   len(batch),
	})

	fixtureID := batch[0].FixtureID
	day := time.Now().UTC().Format("2006-01-02")
	objectKey := fmt.Sprintf("enriched/%s/%s/%d.parquet", fixtureID, day, time.Now().UnixNano())

	if a.s3Client == nil {
		if err := a.flushLocal(objectKey, batch); err != nil {
			log.WithError(err).Error("failed to write local parquet batch")
			return
		}
		log.WithFields(logger.Fields{"key": objectKey}).Info("flushed parquet batch to local spool")
		return
	}

	data, err := encodeParquet(batch)
	if err != nil {
		log.WithError(err).Error("failed to encode parquet batch")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		log.WithError(err).Error("failed to upload parquet batch")
		return
	}

	log.WithFields(logger.Fields{"key": objectKey, "bytes": len(data)}).Info("flushed parquet batch")
}

// flushLocal writes one batch to a parquet file under the spool directory.
func (a *ParquetArchive) flushLocal(objectKey string, batch []models.EnrichedRecord) error {
	path := filepath.Join(a.cfg.LocalDir, filepath.FromSlash(objectKey))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to open parquet file: %w", err)
	}

	pw, err := parquetwriter.NewParquetWriter(fw, new(enrichedRow), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range batch {
		if err := pw.Write(toParquetRow(rec)); err != nil {
			fw.Close()
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return fw.Close()
}

func toParquetRow(rec models.EnrichedRecord) enrichedRow {
	return enrichedRow{
		TimeStamp:        rec.TimeStamp,
		PlayerName:       rec.PlayerName,
		TeamName:         rec.TeamName,
		EventTypeName:    rec.EventTypeName,
		QualifierSummary: rec.QualifierSummary,
		EventID:          rec.EventID,
		FixtureID:        rec.FixtureID,
		FeedName:         rec.FeedName,
		PeriodID:         int32(rec.PeriodID),
		TimeMin:          int32(rec.TimeMin),
		TimeSec:          int32(rec.TimeSec),
		X:                rec.X,
		Y:                rec.Y,
	}
}

func encodeParquet(batch []models.EnrichedRecord) ([]byte, error) {
	mem := newParquetMemFile()
	pw, err := parquetwriter.NewParquetWriter(mem, new(enrichedRow), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range batch {
		if err := pw.Write(toParquetRow(rec)); err != nil {
			return nil, fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return mem.Bytes(), nil
}
