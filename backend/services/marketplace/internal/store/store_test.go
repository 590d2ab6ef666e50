package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhereMatchesTextForm(t *testing.T) {
	data := map[string]any{"status": "pending", "credits": float64(6), "verified": true, "gone": nil}

	assert.True(t, Where{Field: "status", Value: "pending"}.Matches(data))
	assert.True(t, Where{Field: "credits", Value: "6"}.Matches(data))
	assert.True(t, Where{Field: "verified", Value: "true"}.Matches(data))
	assert.False(t, Where{Field: "gone", Value: ""}.Matches(data))
	assert.False(t, Where{Field: "missing", Value: ""}.Matches(data))

	assert.True(t, Missing("gone").Matches(data))
	assert.True(t, Missing("missing").Matches(data))
	assert.False(t, Missing("status").Matches(data))
}

func TestFilterAndDoesNotAlias(t *testing.T) {
	base := Eq("hostId", "h1")
	a := base.And("status", "pending")
	b := base.And("status", "accepted")

	assert.Len(t, base.Where, 1)
	assert.Equal(t, "pending", a.Where[1].Value)
	assert.Equal(t, "accepted", b.Where[1].Value)
}

func TestNormalizeProducesJSONShapes(t *testing.T) {
	when := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	out, err := Normalize(map[string]any{"id": "x", "n": 3, "at": when, "tags": []string{"a"}})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"n": float64(3), "at": "2024-03-04T10:00:00Z", "tags": []any{"a"}}, out)
}

func TestHubCoalescesAndReportsErrors(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	failing := errors.New("backend down")

	hub := NewHub(func(ctx context.Context, collection string, filter Filter) ([]Document, error) {
		n := calls.Add(1)
		if n == 1 {
			<-release
			return nil, failing
		}
		return []Document{{ID: "d"}}, nil
	}, nil)
	defer hub.Close()

	snaps := make(chan Snapshot, 10)
	cancel, err := hub.Subscribe(context.Background(), "c", Filter{}, func(s Snapshot) { snaps <- s })
	require.NoError(t, err)
	defer cancel()

	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	// While the first refresh is blocked, several changes collapse into one pending refresh.
	for i := 0; i < 5; i++ {
		hub.Notify("c")
	}
	hub.Notify("other")
	close(release)

	first := <-snaps
	assert.ErrorIs(t, first.Err, failing)
	second := <-snaps
	require.NoError(t, second.Err)
	assert.Len(t, second.Documents, 1)

	select {
	case extra := <-snaps:
		t.Fatalf("unexpected extra snapshot: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(2), calls.Load())
}
