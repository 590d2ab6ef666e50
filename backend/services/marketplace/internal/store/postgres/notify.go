package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	DefaultChannel      = "plugin_documents"
	listenRetryInterval = 2 * time.Second
)

// NotifyFeed carries change signals over LISTEN/NOTIFY on the same database.
type NotifyFeed struct {
	db      *sqlx.DB
	channel string
	logger  *zap.Logger
}

// NewNotifyFeed builds a feed on channel (DefaultChannel when empty).
func NewNotifyFeed(db *sqlx.DB, channel string, logger *zap.Logger) *NotifyFeed {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifyFeed{db: db, channel: channel, logger: logger}
}

// Publish sends collection as the notification payload.
func (f *NotifyFeed) Publish(ctx context.Context, collection string) error {
	if _, err := f.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, f.channel, collection); err != nil {
		return fmt.Errorf("postgres: notify: %w", err)
	}
	return nil
}

// Listen holds a dedicated connection in LISTEN mode and calls fn per notification. It
// reconnects after failures until ctx is done.
func (f *NotifyFeed) Listen(ctx context.Context, fn func(collection string)) error {
	for {
		err := f.listenOnce(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("document listener dropped, reconnecting", zap.String("channel", f.channel), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(listenRetryInterval):
		}
	}
}

func (f *NotifyFeed) listenOnce(ctx context.Context, fn func(string)) error {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errors.New("postgres: listen requires the pgx driver")
		}
		pc := sc.Conn()
		if _, err := pc.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
			return err
		}
		defer func() {
			// The connection goes back to the pool afterwards.
			cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, _ = pc.Exec(cleanupCtx, "UNLISTEN *")
		}()
		f.logger.Info("listening for document changes", zap.String("channel", f.channel))

		for {
			n, err := pc.WaitForNotification(ctx)
			if err != nil {
				return err
			}
			fn(n.Payload)
		}
	})
}
