package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debitumapp/debitum/pkg/logger"
)

type fakePublisher struct {
	channel string
	payload any
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload any) error {
	f.channel = channel
	f.payload = payload
	return f.err
}

func (f *fakePublisher) WalletEventsChannel(walletID string) string {
	return "debitum:wallet:" + walletID + ":events"
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func TestEventsAcceptedPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, testLogger())
	walletID := uuid.New()

	n.EventsAccepted(context.Background(), walletID, 3)

	assert.Equal(t, "debitum:wallet:"+walletID.String()+":events", pub.channel)
	raw, ok := pub.payload.([]byte)
	require.True(t, ok)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, walletID.String(), msg.WalletID)
	assert.Equal(t, 3, msg.Count)
	assert.False(t, msg.At.IsZero())
}

func TestEventsAcceptedSwallowsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("redis down")}
	n := NewNotifier(pub, testLogger())

	assert.NotPanics(t, func() {
		n.EventsAccepted(context.Background(), uuid.New(), 1)
	})
}
