package sddp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"matchflow/config"
	"matchflow/internal/metrics"
	"matchflow/internal/models"
	"matchflow/internal/queue"
	"matchflow/logger"
)

const defaultKeepAlive = 20 * time.Second

// ErrAuthRejected is returned when the provider refuses the outlet key.
// Credential errors are not transient; the supervisor must not retry.
var ErrAuthRejected = errors.New("sddp: outlet key not authorised")

// IsRetryable reports whether a Run failure is worth a reconnection attempt.
func IsRetryable(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrAuthRejected) &&
		!errors.Is(err, context.Canceled)
}

// Client maintains the persistent stream to the provider, performs the
// auth/subscribe handshake and forwards match-detail payloads into the work
// queue. One Run call is one session; the supervisor decides about retries.
type Client struct {
	cfg      config.FeedConfig
	queue    queue.Queue
	frameLog FrameLog
	dialer   *websocket.Dialer
	log      *logger.Log

	mu   sync.RWMutex
	sess *session
}

// NewClient wires the client to its queue and an injected frame log sink.
func NewClient(cfg config.FeedConfig, q queue.Queue, frameLog FrameLog) *Client {
	c := &Client{
		cfg:      cfg,
		queue:    q,
		frameLog: frameLog,
		dialer:   websocket.DefaultDialer,
		log:      logger.GetLogger(),
	}

	c.log.WithComponent("feed_client").WithFields(logger.Fields{
		"url":     cfg.URL,
		"fixture": cfg.FixtureUUID,
		"feeds":   cfg.Feeds,
	}).Info("feed client initialized")

	return c
}

// State reports the current session state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return StateDisconnected
	}
	return c.sess.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.sess != nil {
		c.sess.state = s
	}
	c.mu.Unlock()
}

// Run performs one connection lifecycle: dial, credential handshake,
// subscribe, then stream frames until the context is cancelled or the
// transport fails. A nil return means clean shutdown; ErrAuthRejected means
// do not retry; anything else is a retryable transport failure.
func (c *Client) Run(ctx context.Context) error {
	log := c.log.WithComponent("feed_client").WithFields(logger.Fields{
		"fixture": c.cfg.FixtureUUID,
	})

	c.mu.Lock()
	c.sess = newSession(c.cfg.FixtureUUID, c.cfg.Feeds, c.frameLog)
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("sddp: failed to establish transport to %s: %w", c.cfg.URL, err)
	}
	log.Info("connected to feed")

	// Unblock the read loop when the context is cancelled.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-runCtx.Done()
		conn.Close()
	}()

	if err := conn.WriteJSON(authFrame{Outlet: outletKey{OutletKey: c.cfg.OutletKey}}); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("sddp: failed to send outlet credential: %w", err)
	}
	c.setState(StateAwaitingAuth)
	log.Info("sent outlet credential")

	pingCancel := c.startPingLoop(runCtx, conn, defaultKeepAlive)
	defer pingCancel()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				log.Info("feed client shut down")
				return nil
			}
			return fmt.Errorf("sddp: transport closed: %w", err)
		}

		if err := c.handleFrame(ctx, conn, msg); err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handleFrame appends the raw frame to the session log before any
// interpretation, then demultiplexes it.
func (c *Client) handleFrame(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	log := c.log.WithComponent("feed_client")
	logger.IncrementFrameRead(len(msg))
	metrics.FramesRead.Inc()

	c.mu.Lock()
	c.sess.framesRead++
	c.mu.Unlock()

	if err := c.frameLog.Append(time.Now(), msg); err != nil {
		log.WithError(err).Error("failed to append raw frame to session log")
	}

	var frame inboundFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		log.WithError(err).Warn("dropping unparseable frame")
		return nil
	}

	switch {
	case frame.Outlet != nil:
		return c.handleControl(frame.Outlet.Msg, conn)
	case len(frame.Content) > 0:
		c.handleContent(ctx, frame.Content)
		return nil
	default:
		log.Debug("dropping frame without recognizable payload")
		return nil
	}
}

func (c *Client) handleControl(msg string, conn *websocket.Conn) error {
	log := c.log.WithComponent("feed_client")

	switch msg {
	case msgAuthorised:
		if c.State() != StateAwaitingAuth {
			log.Debug("ignoring authorisation message outside handshake")
			return nil
		}
		sub := subscribeFrame{Content: subscribeBody{
			Name:        "subscribe",
			Feed:        c.cfg.Feeds,
			FixtureUUID: c.cfg.FixtureUUID,
			OptaID:      c.cfg.OptaID,
		}}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("sddp: failed to send subscribe frame: %w", err)
		}
		c.setState(StateSubscribed)
		log.WithFields(logger.Fields{"feeds": c.cfg.Feeds}).Info("authorised, subscribed to fixture")
		return nil

	case msgNotAuthorised:
		log.Error("outlet key rejected by provider")
		return ErrAuthRejected

	default:
		log.WithFields(logger.Fields{"msg": msg}).Debug("dropping unrecognized control frame")
		return nil
	}
}

func (c *Client) handleContent(ctx context.Context, content json.RawMessage) {
	log := c.log.WithComponent("feed_client")

	// Content is only valid once the subscription is established.
	if s := c.State(); s != StateSubscribed && s != StateStreaming {
		log.WithFields(logger.Fields{"state": s.String()}).Warn("dropping content frame outside subscription")
		return
	}

	var body contentBody
	if err := json.Unmarshal(content, &body); err != nil {
		log.WithError(err).Warn("dropping content frame with unparseable body")
		return
	}
	if body.LiveData == nil || len(body.LiveData.MatchDetails) == 0 {
		log.Debug("dropping content frame without match details")
		return
	}

	c.setState(StateStreaming)

	var md models.MatchDetails
	if err := json.Unmarshal(body.LiveData.MatchDetails, &md); err != nil {
		log.WithError(err).Warn("dropping match details with unparseable events")
		return
	}

	batch := models.NewMatchBatch(md, content, time.Now().UTC())
	if err := c.queue.Enqueue(ctx, batch); err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Error("failed to enqueue match batch")
		}
		return
	}

	metrics.BatchesEnqueued.Inc()
	log.WithFields(logger.Fields{
		"fixture": md.FixtureID,
		"feed":    md.FeedName,
		"events":  len(md.Events),
	}).Info("match batch enqueued")
}

func (c *Client) startPingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) context.CancelFunc {
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(time.Second))
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					c.log.WithComponent("feed_client").WithError(err).Warn("failed to send websocket ping")
					cancel()
					return
				}
			}
		}
	}()
	return cancel
}
