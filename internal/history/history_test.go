package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mapswitch/internal/event"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpenTwiceAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	first, err := Open(path)
	require.NoError(t, err)
	_, err = first.Add(context.Background(), Entry{Kind: KindSwap, Subject: "alpha", Outcome: OutcomeCommitted})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	entries, err := second.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAddAndRecent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	for i, slot := range []string{"alpha", "beta", "gamma"} {
		_, err := store.Add(ctx, Entry{
			Kind:      KindSwap,
			At:        base.Add(time.Duration(i) * time.Minute),
			SessionID: "s" + slot,
			Subject:   slot,
			Trigger:   "roll",
			Outcome:   OutcomeCommitted,
			Duration:  1500 * time.Millisecond,
		})
		require.NoError(t, err)
	}

	entries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "gamma", entries[0].Subject)
	assert.Equal(t, "beta", entries[1].Subject)
	assert.True(t, entries[0].At.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, 1500*time.Millisecond, entries[0].Duration)
	assert.NotEmpty(t, entries[0].ID)

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAddRejectsIncompleteEntries(t *testing.T) {
	store := openTempStore(t)
	_, err := store.Add(context.Background(), Entry{Kind: KindSwap})
	assert.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	store := openTempStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.Recent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.Add(context.Background(), Entry{Kind: KindVote, Outcome: OutcomeResolved})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEntryFromEvent(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		event   event.Event
		ok      bool
		outcome string
		subject string
		detail  string
	}{
		{
			name:    "committed swap",
			event:   event.NewSwapCommittedEvent(at, "s1", "alpha", "beta", "vote", time.Second),
			ok:      true,
			outcome: OutcomeCommitted,
			subject: "alpha",
			detail:  "beta",
		},
		{
			name:    "rolled back swap",
			event:   event.NewSwapRolledBackEvent(at, "s1", "alpha", "roll", "boom", true),
			ok:      true,
			outcome: OutcomeRolledBack,
			subject: "alpha",
			detail:  "boom",
		},
		{
			name:    "resolved vote",
			event:   event.NewVoteResolvedEvent(at, "v1", "steve", "switch map", []string{"A", "B"}, 4, 1, false),
			ok:      true,
			outcome: OutcomeResolved,
			subject: "switch map",
			detail:  "A, B",
		},
		{
			name:    "empty vote",
			event:   event.NewVoteResolvedEvent(at, "v1", "steve", "switch map", nil, 0, 0, false),
			ok:      true,
			outcome: OutcomeNoVotes,
			subject: "switch map",
		},
		{
			name:    "interrupted vote",
			event:   event.NewVoteResolvedEvent(at, "v1", "steve", "switch map", nil, 2, 0, true),
			ok:      true,
			outcome: OutcomeInterrupted,
			subject: "switch map",
		},
		{
			name:  "started swap",
			event: event.NewSwapStartedEvent(at, "s1", "alpha", "manual"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := EntryFromEvent(tt.event)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.outcome, entry.Outcome)
			assert.Equal(t, tt.subject, entry.Subject)
			assert.Equal(t, tt.detail, entry.Detail)
			assert.True(t, entry.At.Equal(at))
		})
	}
}

func TestRecorderWritesFinishedOperations(t *testing.T) {
	store := openTempStore(t)
	bus := event.NewBus(nil)
	rec := NewRecorder(store, bus, nil)
	rec.Start()

	at := time.Unix(1_700_000_000, 0)
	bus.Publish(event.NewSwapStartedEvent(at, "s1", "alpha", "manual"))
	bus.Publish(event.NewSwapCommittedEvent(at, "s1", "alpha", "", "manual", time.Second))
	bus.Publish(event.NewVoteResolvedEvent(at.Add(time.Minute), "v1", "steve", "switch map", []string{"keep"}, 3, 0, false))
	bus.Publish(event.NewRollScheduledEvent(at, "r1", at.Add(time.Hour)))

	rec.Stop()
	rec.Stop()
	assert.Zero(t, bus.SubscriptionCount())

	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindVote, entries[0].Kind)
	assert.Equal(t, "steve", entries[0].Trigger)
	assert.Equal(t, KindSwap, entries[1].Kind)
	assert.Equal(t, "alpha", entries[1].Subject)

	// Events after Stop are ignored.
	bus.Publish(event.NewSwapCommittedEvent(at, "s2", "beta", "", "manual", time.Second))
}
