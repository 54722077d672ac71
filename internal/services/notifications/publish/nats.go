// Package publish fans committed notifications out over NATS so connected
// clients can refresh an inbox without polling.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/safezone/internal/platform/timeouts"
	"github.com/louisbranch/safezone/internal/services/notifications/domain"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix roots every per-recipient subject.
const DefaultSubjectPrefix = "safezone.notifications"

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// Event is the wire shape published for one notification.
type Event struct {
	ID              string    `json:"id"`
	RecipientUserID string    `json:"recipient_user_id"`
	Kind            string    `json:"kind"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	RelatedID       string    `json:"related_id,omitempty"`
	Urgent          bool      `json:"urgent,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Publisher publishes notifications to "<prefix>.<recipient>".
type Publisher struct {
	conn   Conn
	prefix string
	logger *zap.Logger
}

// NewPublisher wraps an established NATS connection.
func NewPublisher(conn Conn, prefix string, logger *zap.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger}
}

// Connect dials url with reconnect options suited to a long-lived service.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(timeouts.Publish),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return conn, nil
}

// Subject returns the subject notifications for recipientUserID go to.
func (p *Publisher) Subject(recipientUserID string) string {
	return p.prefix + "." + recipientUserID
}

// Publish sends one event and waits for the server to acknowledge the flush.
func (p *Publisher) Publish(ctx context.Context, n domain.Notification) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("nats connection is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Event{
		ID:              n.ID,
		RecipientUserID: n.RecipientUserID,
		Kind:            string(n.Kind),
		Title:           n.Title,
		Message:         n.Message,
		RelatedID:       n.RelatedID,
		Urgent:          n.Kind.Urgent(),
		CreatedAt:       n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode notification event: %w", err)
	}
	subject := p.Subject(n.RecipientUserID)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	timeout := timeouts.Publish
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	p.logger.Debug("published notification",
		zap.String("subject", subject),
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
	)
	return nil
}
