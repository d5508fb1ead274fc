// Package publish ships run reports to NATS so other systems can track
// probe results.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/authprobe/report"
)

const (
	clientName   = "authprobe"
	flushTimeout = 5 * time.Second
)

// Publisher delivers run reports.
type Publisher interface {
	Publish(ctx context.Context, run *report.Run) error
	Close() error
}

// Nop discards every report. It is used when no NATS URL is configured.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, *report.Run) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// New returns a NATS publisher for url, or Nop when url is empty.
func New(url, subject string, logger *slog.Logger) (Publisher, error) {
	if url == "" {
		return Nop{}, nil
	}
	return NewNATSPublisher(url, subject, logger)
}

// NATSPublisher publishes run reports as JSON on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// Subject returns the subject a run is published on: the base subject
// suffixed with the scenario name, or "all" for multi-scenario runs.
func Subject(base string, run *report.Run) string {
	if len(run.Results) == 1 {
		return base + "." + run.Results[0].ScenarioName
	}
	return base + ".all"
}

// Publish sends run and waits until the server has acknowledged it.
func (p *NATSPublisher) Publish(ctx context.Context, run *report.Run) error {
	data, err := run.Marshal()
	if err != nil {
		return err
	}

	msg := nats.NewMsg(Subject(p.subject, run))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, run.RunID)
	msg.Header.Set("Content-Type", "application/json")

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish run report: %w", err)
	}

	// FlushWithContext refuses contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush NATS connection: %w", err)
	}

	p.logger.Debug("Published run report",
		slog.String("subject", msg.Subject),
		slog.String("run_id", run.RunID),
		slog.Int("bytes", len(data)))
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
