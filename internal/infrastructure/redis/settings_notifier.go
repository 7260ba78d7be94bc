package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/core/domain/quota"
)

type settingsMessage struct {
	Origin   string         `json:"origin"`
	Settings quota.Settings `json:"settings"`
}

// SettingsNotifier broadcasts quota settings changes over a Redis pub/sub channel.
// Messages published by this instance are not delivered back to it.
type SettingsNotifier struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *logrus.Logger
}

func NewSettingsNotifier(client *redis.Client, channel string, logger *logrus.Logger) *SettingsNotifier {
	return &SettingsNotifier{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

func (n *SettingsNotifier) Publish(ctx context.Context, s quota.Settings) error {
	b, err := json.Marshal(settingsMessage{Origin: n.origin, Settings: s})
	if err != nil {
		return fmt.Errorf("failed to encode settings change: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, b).Err(); err != nil {
		return fmt.Errorf("failed to publish settings change: %w", err)
	}
	return nil
}

// Subscribe confirms the subscription and then delivers changes to fn on a background
// goroutine until ctx is done.
func (n *SettingsNotifier) Subscribe(ctx context.Context, fn func(quota.Settings)) error {
	sub := n.client.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				n.deliver(msg.Payload, fn)
			}
		}
	}()
	return nil
}

func (n *SettingsNotifier) deliver(payload string, fn func(quota.Settings)) {
	var m settingsMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		if n.logger != nil {
			n.logger.WithError(err).Warn("discarding malformed settings change")
		}
		return
	}
	if m.Origin == n.origin {
		return
	}
	if n.logger != nil {
		n.logger.WithFields(logrus.Fields{"origin": m.Origin, "interval": m.Settings.Interval, "limit": m.Settings.Limit}).Info("received quota settings change")
	}
	fn(m.Settings)
}
