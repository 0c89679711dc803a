package session

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// VoteParams configure a Vote.
type VoteParams struct {
	// Initiator is shown in the headline.
	Initiator string
	// Target describes what is being voted on.
	Target  string
	Options []Option
	// OnResolved receives the winners. It runs while the vote's gate is
	// still held, so swaps it starts must use ShouldLock=false.
	OnResolved func(ctx context.Context, winners []Option)
	// AllowDraw resolves ties immediately instead of going to overtime.
	AllowDraw bool
	// DispatchOnExecutor queues OnResolved on the executor instead of
	// running it on the vote goroutine.
	DispatchOnExecutor bool
	// TimeLimit is the length of every voting round.
	TimeLimit time.Duration
}

// OptionTally is one line of a vote's state.
type OptionTally struct {
	Option
	Votes  int  `json:"votes"`
	Active bool `json:"active"`
}

// VoteState is a snapshot of a vote for status output.
type VoteState struct {
	ID        string        `json:"id"`
	Initiator string        `json:"initiator"`
	Target    string        `json:"target"`
	Overtime  int           `json:"overtime"`
	Deadline  time.Time     `json:"deadline"`
	Ballots   int           `json:"ballots"`
	Options   []OptionTally `json:"options"`
}

// Vote collects ballots over one or more timed rounds. A tie among the
// leaders starts an overtime round restricted to them.
type Vote struct {
	base

	deps   Deps
	params VoteParams
	logger *logging.Logger

	mu       sync.Mutex
	original []Option
	active   []Option
	ballots  map[string]Option
	overtime int
	deadline time.Time

	done chan struct{}
}

// NewVote creates a vote. Nothing is registered until Start.
func NewVote(deps Deps, params VoteParams) (*Vote, error) {
	deps, err := deps.normalize()
	if err != nil {
		return nil, err
	}
	if len(params.Options) == 0 {
		return nil, ErrNoOptions
	}
	seen := make(map[string]bool, len(params.Options))
	for _, o := range params.Options {
		if o.Name == "" || seen[o.Name] {
			return nil, fmt.Errorf("invalid or duplicate vote option %q", o.Name)
		}
		seen[o.Name] = true
	}
	if params.TimeLimit <= 0 {
		return nil, fmt.Errorf("vote time limit must be positive, got %s", params.TimeLimit)
	}
	if params.OnResolved == nil {
		params.OnResolved = func(context.Context, []Option) {}
	}

	v := &Vote{
		deps:     deps,
		params:   params,
		original: slices.Clone(params.Options),
		active:   slices.Clone(params.Options),
		ballots:  make(map[string]Option),
		done:     make(chan struct{}),
	}
	v.init(KindVote, true, deps.now())
	v.logger = deps.Logger.WithKind(string(KindVote)).WithSession(v.id)
	return v, nil
}

// Start registers the vote, takes the gate and runs the rounds on a new
// goroutine. It must not be called on the executor.
func (v *Vote) Start(ctx context.Context) error {
	if v.deps.Host.OnExecutor(ctx) {
		return fmt.Errorf("vote cannot start on the executor: %w", ErrWrongExecutionContext)
	}
	if !v.deps.Registry.TryRegister(v) {
		return ErrVoteAlreadyRunning
	}
	if !v.deps.Registry.TryAcquireGate() {
		v.terminate()
		v.deps.Registry.clearSession(v)
		return fmt.Errorf("start vote: %w", ErrGateBusy)
	}

	v.logger.Info("vote started", "initiator", v.params.Initiator, "target", v.params.Target,
		"options", optionNames(v.original))
	v.deps.publish(event.NewVoteStartedEvent(v.deps.now(), v.id, v.params.Initiator, v.params.Target,
		optionNames(v.original), v.params.TimeLimit))

	go v.run(context.WithoutCancel(ctx))
	return nil
}

// Done is closed when the vote goroutine exits.
func (v *Vote) Done() <-chan struct{} {
	return v.done
}

// Cast records voter's ballot; a later ballot replaces an earlier one.
func (v *Vote) Cast(voter, option string) (Option, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.Terminated() {
		return Option{}, ErrNoActiveVote
	}
	i := indexOption(v.active, option)
	if i < 0 {
		return Option{}, fmt.Errorf("%w: %s", ErrUnknownOption, option)
	}
	v.ballots[voter] = v.active[i]
	v.logger.Debug("ballot cast", "voter", voter, "option", option)
	return v.active[i], nil
}

// IsActiveOption reports whether name can currently be voted for.
func (v *Vote) IsActiveOption(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return indexOption(v.active, name) >= 0
}

// Overtime returns the number of overtime rounds started so far.
func (v *Vote) Overtime() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.overtime
}

// State returns a snapshot of the vote.
func (v *Vote) State() VoteState {
	v.mu.Lock()
	defer v.mu.Unlock()

	counts := v.countsLocked()
	state := VoteState{
		ID:        v.id,
		Initiator: v.params.Initiator,
		Target:    v.params.Target,
		Overtime:  v.overtime,
		Deadline:  v.deadline,
		Ballots:   len(v.ballots),
	}
	for _, o := range v.original {
		active := indexOption(v.active, o.Name) >= 0
		state.Options = append(state.Options, OptionTally{Option: o, Votes: counts[o.Name], Active: active})
	}
	return state
}

// Interrupt cancels the vote. The vote goroutine releases the gate.
func (v *Vote) Interrupt() {
	if v.terminate() {
		v.logger.Info("vote interrupted")
		v.deps.Registry.clearSession(v)
	}
}

// DisplayText is the announcement shown at the start of every round.
func (v *Vote) DisplayText() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.displayTextLocked()
}

func (v *Vote) displayTextLocked() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s started a vote: %s (%s minute(s) to vote)",
		v.params.Initiator, v.params.Target, FormatMinutes(v.params.TimeLimit))
	if v.overtime > 0 {
		fmt.Fprintf(&b, " [overtime %d]", v.overtime)
	}

	num := 0
	for _, o := range v.original {
		if indexOption(v.active, o.Name) < 0 {
			continue
		}
		num++
		fmt.Fprintf(&b, "\n[%d] %s", num, o.Label)
	}
	for _, o := range v.original {
		if indexOption(v.active, o.Name) >= 0 {
			continue
		}
		num++
		fmt.Fprintf(&b, "\n[%d] ~~%s~~", num, o.Label)
	}
	return b.String()
}

func (v *Vote) countsLocked() map[string]int {
	counts := make(map[string]int, len(v.active))
	for _, o := range v.active {
		counts[o.Name] = 0
	}
	for _, o := range v.ballots {
		counts[o.Name]++
	}
	return counts
}

// tallyLocked returns the leading options in active order and the number
// of ballots.
func (v *Vote) tallyLocked() ([]Option, int) {
	counts := v.countsLocked()
	best := 0
	for _, n := range counts {
		best = max(best, n)
	}
	var winners []Option
	for _, o := range v.active {
		if counts[o.Name] == best {
			winners = append(winners, o)
		}
	}
	return winners, len(v.ballots)
}

// resultTextLocked lists the winners, then every active option by count,
// then the options eliminated in earlier rounds.
func (v *Vote) resultTextLocked(winners []Option) string {
	counts := v.countsLocked()
	labels := make([]string, len(winners))
	for i, w := range winners {
		labels[i] = w.Label
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Vote result: %s", strings.Join(labels, ", "))

	ranked := slices.Clone(v.active)
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i].Name] > counts[ranked[j].Name]
	})
	num := 0
	for _, o := range ranked {
		num++
		if indexOption(winners, o.Name) >= 0 {
			fmt.Fprintf(&b, "\n[%d] %d %s", num, counts[o.Name], o.Label)
		} else {
			fmt.Fprintf(&b, "\n[%d] ~~%d %s~~", num, counts[o.Name], o.Label)
		}
	}
	for _, o := range v.original {
		if indexOption(v.active, o.Name) >= 0 {
			continue
		}
		num++
		fmt.Fprintf(&b, "\n[%d] ~~-- %s~~", num, o.Label)
	}
	return b.String()
}

func (v *Vote) run(ctx context.Context) {
	defer close(v.done)

	for {
		v.mu.Lock()
		v.deadline = v.deps.now().Add(v.params.TimeLimit)
		text := v.displayTextLocked()
		v.mu.Unlock()
		v.deps.Host.Broadcast(text)

		if !sleep(v.deps.Clock, v.params.TimeLimit, v.stop) {
			v.finish(nil, 0, true)
			return
		}

		v.mu.Lock()
		if v.Terminated() {
			v.mu.Unlock()
			v.finish(nil, 0, true)
			return
		}
		winners, ballots := v.tallyLocked()

		if ballots == 0 {
			v.terminate()
			v.mu.Unlock()
			v.deps.Registry.clearSession(v)
			v.deps.Host.Broadcast("No one voted, the vote is cancelled")
			v.finish(nil, 0, false)
			return
		}

		result := v.resultTextLocked(winners)
		if len(winners) == 1 || v.params.AllowDraw {
			v.terminate()
			v.mu.Unlock()
			v.deps.Registry.clearSession(v)
			v.deps.Host.Broadcast(result)
			v.resolve(ctx, winners, ballots)
			return
		}

		v.active = winners
		v.ballots = make(map[string]Option)
		v.overtime++
		round := v.overtime
		v.mu.Unlock()

		v.deps.Host.Broadcast(result)
		v.logger.Info("vote tied, starting overtime", "round", round, "options", optionNames(winners))
		v.deps.publish(event.NewVoteOvertimeEvent(v.deps.now(), v.id, round, optionNames(winners)))
	}
}

// finish ends a vote that dispatches nothing and releases the gate.
func (v *Vote) finish(winners []Option, ballots int, interrupted bool) {
	if interrupted {
		v.deps.Host.Broadcast(fmt.Sprintf("The vote on %s was cancelled", v.params.Target))
	}
	v.publishResolved(winners, ballots, interrupted)
	v.deps.Registry.ReleaseGate()
}

func (v *Vote) publishResolved(winners []Option, ballots int, interrupted bool) {
	overtime := v.Overtime()
	v.logger.Info("vote resolved", "winners", optionNames(winners), "ballots", ballots,
		"overtime", overtime, "interrupted", interrupted)
	v.deps.publish(event.NewVoteResolvedEvent(v.deps.now(), v.id, v.params.Initiator, v.params.Target,
		optionNames(winners), ballots, overtime, interrupted))
}

// resolve hands the gate to the dispatch, which releases it after
// OnResolved returns.
func (v *Vote) resolve(ctx context.Context, winners []Option, ballots int) {
	v.publishResolved(winners, ballots, false)

	dispatch := func(ctx context.Context) {
		defer v.deps.Registry.ReleaseGate()
		defer func() {
			if r := recover(); r != nil {
				v.logger.Error("vote result handler panicked",
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
				v.deps.Host.Broadcast(fmt.Sprintf("Error while applying the vote result: %v", r))
			}
		}()
		v.params.OnResolved(ctx, winners)
	}

	if v.params.DispatchOnExecutor {
		v.deps.Host.Schedule(dispatch)
		return
	}
	dispatch(ctx)
}
