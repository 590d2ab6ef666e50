// Package redisfeed carries document change signals over Redis pub/sub.
package redisfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultChannel      = "plugin:changes"
	listenRetryInterval = 2 * time.Second
)

// Feed publishes collection names on one channel.
type Feed struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

// New builds a Feed on channel (DefaultChannel when empty).
func New(client redis.UniversalClient, channel string, logger *zap.Logger) *Feed {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{client: client, channel: channel, logger: logger}
}

// Publish signals a change to collection.
func (f *Feed) Publish(ctx context.Context, collection string) error {
	if err := f.client.Publish(ctx, f.channel, collection).Err(); err != nil {
		return fmt.Errorf("redisfeed: publish: %w", err)
	}
	return nil
}

// Listen calls fn for every signal until ctx is done, resubscribing after failures.
func (f *Feed) Listen(ctx context.Context, fn func(collection string)) error {
	for {
		err := f.listenOnce(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("redis change feed dropped, resubscribing", zap.String("channel", f.channel), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(listenRetryInterval):
		}
	}
}

func (f *Feed) listenOnce(ctx context.Context, fn func(string)) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	f.logger.Info("listening for document changes", zap.String("channel", f.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redisfeed: subscription closed")
			}
			fn(msg.Payload)
		}
	}
}
