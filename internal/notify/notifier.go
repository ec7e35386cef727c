// Package notify announces accepted sync batches over redis pub/sub so
// online replicas can pull promptly instead of waiting for their next poll.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/debitumapp/debitum/pkg/logger"
)

// publisher is the redis surface the notifier uses.
type publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
	WalletEventsChannel(walletID string) string
}

// Message is the wire payload published per accepted batch. Count is a hint
// only; replicas still pull from their own watermark.
type Message struct {
	WalletID string    `json:"wallet_id"`
	Count    int       `json:"count"`
	At       time.Time `json:"at"`
}

// Notifier publishes wallet event announcements.
type Notifier struct {
	pub publisher
	log *logger.Logger
}

// NewNotifier wires a notifier over the shared redis client.
func NewNotifier(pub publisher, log *logger.Logger) *Notifier {
	return &Notifier{pub: pub, log: log}
}

// EventsAccepted publishes a nudge for the wallet. Delivery is best effort:
// a publish failure is logged and swallowed because the poll loop is the
// durable path.
func (n *Notifier) EventsAccepted(ctx context.Context, walletID uuid.UUID, count int) {
	msg := Message{WalletID: walletID.String(), Count: count, At: time.Now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		n.log.Error(ctx, "marshaling wallet event notification", err)
		return
	}
	channel := n.pub.WalletEventsChannel(walletID.String())
	if err := n.pub.Publish(ctx, channel, payload); err != nil {
		n.log.Warn(ctx, "publishing wallet event notification failed")
	}
}
