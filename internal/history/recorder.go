package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// recorderBuffer bounds entries waiting to be written.
const recorderBuffer = 64

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Recorder turns finished swaps and votes published on the bus into
// history entries. Bus handlers only enqueue; a single goroutine writes.
type Recorder struct {
	store  *Store
	bus    *event.Bus
	logger *logging.Logger

	mu      sync.Mutex
	closed  bool
	queue   chan Entry
	subs    []string
	stopped chan struct{}
}

// NewRecorder creates a recorder writing to store. logger may be nil.
func NewRecorder(store *Store, bus *event.Bus, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Recorder{
		store:   store,
		bus:     bus,
		logger:  logger.With("component", "history"),
		queue:   make(chan Entry, recorderBuffer),
		stopped: make(chan struct{}),
	}
}

// Start subscribes to swap and vote events and starts the writer.
func (r *Recorder) Start() {
	r.subs = append(r.subs,
		r.bus.MustSubscribe("swap.*", r.handle),
		r.bus.MustSubscribe(event.TypeVoteResolved, r.handle),
	)
	go r.write()
}

// Stop unsubscribes, writes what is still queued and waits for the writer.
func (r *Recorder) Stop() {
	for _, id := range r.subs {
		r.bus.Unsubscribe(id)
	}
	r.subs = nil

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.stopped
}

func (r *Recorder) handle(e event.Event) {
	entry, ok := EntryFromEvent(e)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("history queue full, entry dropped", "kind", entry.Kind, "subject", entry.Subject)
	}
}

func (r *Recorder) write() {
	defer close(r.stopped)
	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if _, err := r.store.Add(ctx, entry); err != nil {
			r.logger.Error("failed to record history", "kind", entry.Kind, "subject", entry.Subject, "error", err)
		}
		cancel()
	}
}

// EntryFromEvent converts a finished swap or vote event. Other events
// report false.
func EntryFromEvent(e event.Event) (Entry, bool) {
	switch ev := e.(type) {
	case event.SwapCommittedEvent:
		return Entry{
			Kind:      KindSwap,
			At:        ev.Timestamp(),
			SessionID: ev.SessionID,
			Subject:   ev.Slot,
			Trigger:   ev.Trigger,
			Outcome:   OutcomeCommitted,
			Detail:    ev.Previous,
			Duration:  ev.Duration,
		}, true
	case event.SwapRolledBackEvent:
		return Entry{
			Kind:      KindSwap,
			At:        ev.Timestamp(),
			SessionID: ev.SessionID,
			Subject:   ev.Slot,
			Trigger:   ev.Trigger,
			Outcome:   OutcomeRolledBack,
			Detail:    ev.Reason,
		}, true
	case event.VoteResolvedEvent:
		outcome := OutcomeResolved
		switch {
		case ev.Interrupted:
			outcome = OutcomeInterrupted
		case ev.Ballots == 0:
			outcome = OutcomeNoVotes
		}
		return Entry{
			Kind:      KindVote,
			At:        ev.Timestamp(),
			SessionID: ev.SessionID,
			Subject:   ev.Target,
			Trigger:   ev.Initiator,
			Outcome:   outcome,
			Detail:    strings.Join(ev.Winners, ", "),
		}, true
	}
	return Entry{}, false
}
