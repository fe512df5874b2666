package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "khata/pkg/domain"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/audit/store/memory"
)

// fakeProducer records produced payloads and can be told to fail.
type fakeProducer struct {
	mu       sync.Mutex
	keys     []string
	failNext int
}

func (f *fakeProducer) Produce(_ context.Context, key string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("broker unreachable")
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeProducer) produced() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.keys...)
}

func seedEvents(t *testing.T, store *memory.InMemoryStore, accountID id.AccountID, n int) {
	t.Helper()
	for range n {
		err := store.Append(context.Background(), audit.Event{
			Action:     string(audit.EventDepositCreated),
			EntityType: "deposit",
			AccountID:  accountID,
		})
		require.NoError(t, err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRelay_ExportsAndMarksPublished(t *testing.T) {
	store := memory.NewInMemoryStore()
	producer := &fakeProducer{}
	accountID := id.NewAccountID()
	seedEvents(t, store, accountID, 3)

	relay := NewRelay(store, producer, WithLogger(testLogger()))

	published, err := relay.relayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, published)

	// Everything exported: next pass finds an empty outbox.
	published, err = relay.relayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)

	// Per-account ordering key on every record.
	for _, key := range producer.produced() {
		assert.Equal(t, accountID.String(), key)
	}
}

func TestRelay_StopsBatchOnFirstFailure(t *testing.T) {
	store := memory.NewInMemoryStore()
	producer := &fakeProducer{failNext: 1}
	seedEvents(t, store, id.NewAccountID(), 3)

	relay := NewRelay(store, producer, WithLogger(testLogger()))

	published, err := relay.relayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published, "first produce failed, nothing may be marked published")

	// The retry pass exports all three in order.
	published, err = relay.relayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, published)
}

func TestRelay_BreakerShrinksBatchToProbe(t *testing.T) {
	store := memory.NewInMemoryStore()
	producer := &fakeProducer{failNext: 100}
	seedEvents(t, store, id.NewAccountID(), 10)

	relay := NewRelay(store, producer, WithLogger(testLogger()))

	// Five failing passes open the breaker (threshold 5).
	for range 5 {
		_, err := relay.relayOnce(context.Background())
		require.NoError(t, err)
	}
	assert.True(t, relay.breaker.IsOpen())

	// Broker recovers. Open breaker probes one entry per pass and needs
	// two successes to close.
	producer.mu.Lock()
	producer.failNext = 0
	producer.mu.Unlock()

	published, err := relay.relayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.True(t, relay.breaker.IsOpen())

	published, err = relay.relayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.False(t, relay.breaker.IsOpen())

	// Closed again: the rest drains in one full batch.
	published, err = relay.relayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, published)
}

func TestRelay_EmptyOutboxIsANoOp(t *testing.T) {
	store := memory.NewInMemoryStore()
	producer := &fakeProducer{}
	relay := NewRelay(store, producer)

	published, err := relay.relayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Empty(t, producer.produced())
}
