// Package event provides a pub-sub event bus for decoupled inter-component
// communication in mapswitch.
//
// Sessions publish what they do; consumers such as the history recorder and
// the daemon log subscribe without the sessions depending on them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Registry:
//   - [SessionRegisteredEvent], [SessionClearedEvent]
//
// Swap:
//   - [SwapStartedEvent], [SwapCommittedEvent], [SwapRolledBackEvent]
//
// Vote:
//   - [VoteStartedEvent], [VoteOvertimeEvent], [VoteResolvedEvent]
//
// Rolling:
//   - [RollScheduledEvent], [RollDelayedEvent], [RollDeferredEvent]
//
// # Patterns
//
// Subscribe takes a glob over event types with '.' as separator:
//
//	bus := event.NewBus(logger)
//	bus.MustSubscribe("swap.*", func(e event.Event) {
//	    log.Printf("swap event %s", e.EventType())
//	})
//	bus.MustSubscribe("{vote.resolved,roll.deferred}", handler)
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publisher's goroutine and protected against panics.
package event
