// Package events publishes pipeline events to NATS.
//
// Each telemetry.Event is published as JSON to {prefix}.{event name}, for
// example docrag.events.ingest.completed. The Publisher is a telemetry.Sink;
// publish failures are returned to the hooks, which absorb them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/config"
	"github.com/fyrsmithlabs/docrag/internal/telemetry"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "docrag.events"

// Header names carried on every published message.
const (
	HeaderTraceID   = "Docrag-Trace-Id"
	HeaderRequestID = "Docrag-Request-Id"
)

var (
	// ErrDisabled is returned by Connect when events are not enabled.
	ErrDisabled = errors.New("event publishing disabled")

	// ErrPublish indicates a message could not be published.
	ErrPublish = errors.New("event publish failed")
)

// Publisher publishes events to NATS.
type Publisher struct {
	nc       *nats.Conn
	prefix   string
	ownsConn bool
	logger   *zap.Logger
}

var _ telemetry.Sink = (*Publisher)(nil)

// Connect dials the configured NATS server. It returns ErrDisabled without
// connecting when cfg.Enabled is false.
func Connect(cfg config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("docrag"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	p := NewPublisher(nc, cfg.SubjectPrefix, logger)
	p.ownsConn = true
	logger.Info("event publishing enabled",
		zap.String("url", nc.ConnectedUrl()),
		zap.String("subject_prefix", p.prefix))
	return p, nil
}

// NewPublisher publishes on an existing connection, which the caller keeps
// ownership of.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject an event named name is published to.
func (p *Publisher) Subject(name string) string {
	return p.prefix + "." + subjectToken(name)
}

// subjectToken keeps dots as hierarchy separators and replaces characters
// NATS reserves.
func subjectToken(name string) string {
	name = strings.Trim(name, ".")
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '*', '>':
			return '_'
		}
		return r
	}, name)
}

// Emit implements telemetry.Sink.
func (p *Publisher) Emit(ctx context.Context, ev telemetry.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrPublish, ev.Name, err)
	}

	msg := nats.NewMsg(p.Subject(ev.Name))
	msg.Data = data
	if ev.TraceID != "" {
		msg.Header.Set(HeaderTraceID, ev.TraceID)
	}
	if ev.RequestID != "" {
		msg.Header.Set(HeaderRequestID, ev.RequestID)
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, msg.Subject, err)
	}
	return nil
}

// Health reports whether the connection is up.
func (p *Publisher) Health(ctx context.Context) error {
	if p.nc.IsConnected() {
		return nil
	}
	return fmt.Errorf("nats connection status %s", p.nc.Status())
}

// Close drains the connection if the publisher opened it.
func (p *Publisher) Close() error {
	if !p.ownsConn {
		return nil
	}
	return p.nc.Drain()
}
