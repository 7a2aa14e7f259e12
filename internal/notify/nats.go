package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/config"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// DefaultSubject is the subject notifications are published on
const DefaultSubject = "tillsyn.notifications"

// Publisher is the subset of *nats.Conn used for publishing
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications as JSON on a NATS subject.
// Per-level subjects are <subject>.<level>.
type NATSNotifier struct {
	conn    Publisher
	subject string
	now     func() time.Time
	logger  *logger.Logger
}

// ConnectNATS dials the configured server with bounded reconnects
func ConnectNATS(cfg config.NATSConfig, log *logger.Logger) (*nats.Conn, error) {
	log = log.Named("nats")
	log.Info("Connecting to NATS", logger.String("url", cfg.URL))

	opts := []nats.Option{
		nats.Name("tillsyn-assist"),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info("Connected to NATS", logger.String("url", conn.ConnectedUrl()))
	return conn, nil
}

// NewNATSNotifier creates a notifier publishing through conn
func NewNATSNotifier(conn Publisher, subject string, log *logger.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{
		conn:    conn,
		subject: subject,
		now:     time.Now,
		logger:  log.Named("notify-nats"),
	}
}

// Notify publishes n on <subject>.<level>
func (p *NATSNotifier) Notify(_ context.Context, n Notification) error {
	if p.conn == nil {
		return fmt.Errorf("NATS connection not established")
	}
	if n.Time.IsZero() {
		n.Time = p.now()
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.subject, n.Level)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("Published notification",
		logger.String("subject", subject),
		logger.String("title", n.Title))
	return nil
}
