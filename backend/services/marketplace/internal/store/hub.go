package store

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// QueryFunc recomputes a subscription's result set.
type QueryFunc func(ctx context.Context, collection string, filter Filter) ([]Document, error)

// Hub fans change signals out to subscriptions. Each subscription owns a goroutine and a
// one-slot mailbox: a burst of changes collapses into one re-query, and deliveries for one
// subscription never overlap or reorder.
type Hub struct {
	query  QueryFunc
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
	closed bool
}

type subscription struct {
	collection string
	filter     Filter
	fn         func(Snapshot)
	wake       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewHub builds a Hub that refreshes subscriptions through query.
func NewHub(query QueryFunc, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		query:  query,
		logger: logger,
		subs:   make(map[uint64]*subscription),
	}
}

// Subscribe registers fn for filter on collection. The first snapshot is delivered
// asynchronously right away. The subscription ends when the returned CancelFunc is called or
// ctx is done.
func (h *Hub) Subscribe(ctx context.Context, collection string, filter Filter, fn func(Snapshot)) (CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		collection: collection,
		filter:     filter,
		fn:         fn,
		wake:       make(chan struct{}, 1),
		ctx:        subCtx,
		cancel:     cancel,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	sub.signal()
	go h.run(id, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.cancel()
			h.remove(id)
		})
	}, nil
}

// Notify marks every subscription on collection as stale.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.collection == collection {
			sub.signal()
		}
	}
}

// Active returns the number of live subscriptions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close cancels every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		sub.cancel()
		delete(h.subs, id)
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *Hub) run(id uint64, sub *subscription) {
	defer h.remove(id)
	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.wake:
		}

		docs, err := h.query(sub.ctx, sub.collection, sub.filter)
		if sub.ctx.Err() != nil {
			return
		}
		if err != nil {
			h.logger.Warn("subscription refresh failed",
				zap.String("collection", sub.collection),
				zap.Error(err),
			)
		}
		sub.fn(Snapshot{Documents: docs, Err: err})
	}
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
