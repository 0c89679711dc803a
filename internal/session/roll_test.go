package session

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/event"
)

type picker struct {
	mu     sync.Mutex
	calls  []string
	target string
	err    error
}

func (p *picker) pick(current string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, current)
	return p.target, p.err
}

func (p *picker) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newTestRoll(t *testing.T, env *testEnv, p *picker) *AutoRoll {
	t.Helper()
	r, err := NewAutoRoll(env.deps, RollParams{
		Interval:       time.Hour,
		RemindInterval: 10 * time.Minute,
		BusyRetry:      time.Minute,
		Pick:           p.pick,
	})
	if err != nil {
		t.Fatalf("NewAutoRoll() error = %v", err)
	}
	return r
}

// currentRoll returns the registered roll if it differs from old.
func currentRoll(env *testEnv, old *AutoRoll) (*AutoRoll, bool) {
	s, ok := env.reg.Get(KindAutoRoll)
	if !ok || s == Session(old) {
		return nil, false
	}
	r, ok := s.(*AutoRoll)
	return r, ok
}

func TestAutoRoll_Schedule(t *testing.T) {
	env := newTestEnv(t)
	events := env.recordEvents()
	r := newTestRoll(t, env, &picker{target: "alpha"})
	r.Start()
	defer r.Interrupt()

	if want := testEpoch.Add(time.Hour); !r.NextFire().Equal(want) {
		t.Errorf("NextFire() = %v, want %v", r.NextFire(), want)
	}
	if got := r.Remaining(); got != time.Hour {
		t.Errorf("Remaining() = %v, want 1h", got)
	}
	if !r.Pending() {
		t.Error("a started roll is pending")
	}
	if s, ok := env.reg.Get(KindAutoRoll); !ok || s != Session(r) {
		t.Error("Start() should register the roll")
	}
	if r.ShouldLock() {
		t.Error("the roll itself never holds the gate")
	}
	if !slices.Contains(events(), event.TypeRollScheduled) {
		t.Errorf("events %v missing %s", events(), event.TypeRollScheduled)
	}
}

func TestAutoRoll_Reminder(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRoll(t, env, &picker{target: "alpha"})
	r.Start()
	defer r.Interrupt()

	// Roll timer plus reminder ticker.
	blockUntil(t, env.clock, 2)
	env.clock.Advance(10 * time.Minute)

	waitFor(t, "reminder", func() bool { return env.host.said("Next map in 50 minute(s)") })
}

func TestAutoRoll_Delay(t *testing.T) {
	env := newTestEnv(t)
	env.addSlot(t, "alpha", map[string]string{"a.txt": "A"})
	p := &picker{target: "alpha"}
	r := newTestRoll(t, env, p)
	r.Start()

	if err := r.Delay(0); !errors.Is(err, ErrInvalidDelay) {
		t.Errorf("Delay(0) error = %v, want ErrInvalidDelay", err)
	}
	if err := r.Delay(-time.Minute); !errors.Is(err, ErrInvalidDelay) {
		t.Errorf("Delay(-1m) error = %v, want ErrInvalidDelay", err)
	}
	if err := r.Delay(10 * time.Minute); err != nil {
		t.Fatalf("Delay(10m) error = %v", err)
	}
	if want := testEpoch.Add(70 * time.Minute); !r.NextFire().Equal(want) {
		t.Errorf("NextFire() = %v, want %v", r.NextFire(), want)
	}

	blockUntil(t, env.clock, 2)
	env.clock.Advance(time.Hour)
	// Give a stale timer the chance to fire; nothing may roll yet.
	time.Sleep(20 * time.Millisecond)
	if p.count() != 0 {
		t.Fatal("the original roll time must no longer fire")
	}

	env.clock.Advance(10 * time.Minute)
	waitFor(t, "roll", func() bool { return p.count() == 1 })
	waitFor(t, "fresh cycle", func() bool {
		_, ok := currentRoll(env, r)
		return ok
	})

	if got := env.catalog.Current(); got != "alpha" {
		t.Errorf("Current() = %q, want alpha", got)
	}
	if !r.Terminated() {
		t.Error("the finished cycle should be terminated")
	}
	next, _ := currentRoll(env, r)
	if want := testEpoch.Add(130 * time.Minute); !next.NextFire().Equal(want) {
		t.Errorf("next cycle NextFire() = %v, want %v", next.NextFire(), want)
	}
	next.Interrupt()
}

func TestAutoRoll_NothingToDelay(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRoll(t, env, &picker{target: "alpha"})
	r.Start()
	r.Interrupt()

	if err := r.Delay(time.Minute); !errors.Is(err, ErrNothingToDelay) {
		t.Errorf("Delay() after Interrupt error = %v, want ErrNothingToDelay", err)
	}
}

func TestAutoRoll_DefersWhileGateBusy(t *testing.T) {
	env := newTestEnv(t)
	env.addSlot(t, "alpha", map[string]string{"a.txt": "A"})
	events := env.recordEvents()
	p := &picker{target: "alpha"}
	r := newTestRoll(t, env, p)
	r.Start()

	if !env.reg.TryAcquireGate() {
		t.Fatal("gate should be free")
	}

	blockUntil(t, env.clock, 2)
	env.clock.Advance(time.Hour)
	retryAt := testEpoch.Add(61 * time.Minute)
	waitFor(t, "deferral", func() bool { return r.NextFire().Equal(retryAt) })

	if !r.Pending() {
		t.Error("a deferred roll is pending again")
	}
	if !env.host.said("postponed") {
		t.Errorf("missing deferral broadcast in %v", env.host.Messages())
	}
	if !slices.Contains(events(), event.TypeRollDeferred) {
		t.Errorf("events %v missing %s", events(), event.TypeRollDeferred)
	}
	if stops, _ := env.host.calls(); stops != 0 {
		t.Error("a deferred roll must not touch the server")
	}

	env.reg.ReleaseGate()
	env.clock.Advance(time.Minute)
	waitFor(t, "retried roll", func() bool {
		_, ok := currentRoll(env, r)
		return ok
	})
	if got := env.catalog.Current(); got != "alpha" {
		t.Errorf("Current() = %q, want alpha", got)
	}
	if p.count() != 2 {
		t.Errorf("pick called %d times, want 2", p.count())
	}
	next, _ := currentRoll(env, r)
	next.Interrupt()
}

func TestAutoRoll_RestartsAfterFailedPick(t *testing.T) {
	env := newTestEnv(t)
	p := &picker{err: errBoom}
	r := newTestRoll(t, env, p)
	r.Start()

	blockUntil(t, env.clock, 2)
	env.clock.Advance(time.Hour)

	waitFor(t, "fresh cycle", func() bool {
		_, ok := currentRoll(env, r)
		return ok
	})
	if !env.host.said("Could not pick the next map") {
		t.Errorf("missing pick failure broadcast in %v", env.host.Messages())
	}
	next, _ := currentRoll(env, r)
	next.Interrupt()
}

func TestAutoRoll_InterruptTwice(t *testing.T) {
	env := newTestEnv(t)
	p := &picker{target: "alpha"}
	r := newTestRoll(t, env, p)
	r.Start()

	r.Interrupt()
	r.Interrupt()

	if !env.reg.IsAvailable(KindAutoRoll) {
		t.Error("Interrupt() should unregister the roll")
	}
	if r.Pending() {
		t.Error("an interrupted roll is not pending")
	}
	env.clock.Advance(2 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	if p.count() != 0 {
		t.Error("an interrupted roll must never fire")
	}
}

func TestAutoRoll_StartReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	first := newTestRoll(t, env, &picker{target: "alpha"})
	first.Start()
	second := newTestRoll(t, env, &picker{target: "alpha"})
	second.Start()
	defer second.Interrupt()

	if !first.Terminated() {
		t.Error("starting a roll should interrupt the previous one")
	}
	if s, _ := env.reg.Get(KindAutoRoll); s != Session(second) {
		t.Error("the newest roll should be registered")
	}
}

func TestNewAutoRoll_Validation(t *testing.T) {
	env := newTestEnv(t)
	pick := func(string) (string, error) { return "", nil }

	tests := []struct {
		name   string
		params RollParams
	}{
		{"zero interval", RollParams{RemindInterval: time.Minute, Pick: pick}},
		{"zero remind", RollParams{Interval: time.Minute, Pick: pick}},
		{"no pick", RollParams{Interval: time.Minute, RemindInterval: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAutoRoll(env.deps, tt.params); err == nil {
				t.Error("NewAutoRoll() should fail")
			}
		})
	}

	r, err := NewAutoRoll(env.deps, RollParams{Interval: time.Minute, RemindInterval: time.Minute, Pick: pick})
	if err != nil {
		t.Fatal(err)
	}
	if r.Params().BusyRetry != DefaultBusyRetry {
		t.Errorf("BusyRetry = %v, want default", r.Params().BusyRetry)
	}
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{50 * time.Minute, "50"},
		{90 * time.Second, "1.5"},
		{time.Minute + 20*time.Second, "1.33"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := FormatMinutes(tt.in); got != tt.want {
			t.Errorf("FormatMinutes(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
