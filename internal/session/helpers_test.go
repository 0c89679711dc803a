package session

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Iron-Ham/mapswitch/internal/catalog"
	"github.com/Iron-Ham/mapswitch/internal/event"
	"github.com/Iron-Ham/mapswitch/internal/fsutil"
	"github.com/Iron-Ham/mapswitch/internal/host"
)

var testEpoch = time.Unix(1_700_000_000, 0)

// fakeHost is a server that only records what happened to it. Executor
// work runs on a real host.Executor.
type fakeHost struct {
	exec *host.Executor

	mu       sync.Mutex
	running  bool
	messages []string
	starts   int
	stops    int
	// startErrs are returned by successive Start calls.
	startErrs []error
	stopErr   error
}

func (h *fakeHost) Broadcast(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *fakeHost) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *fakeHost) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	if h.stopErr != nil {
		return h.stopErr
	}
	h.running = false
	return nil
}

func (h *fakeHost) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	if len(h.startErrs) > 0 {
		err := h.startErrs[0]
		h.startErrs = h.startErrs[1:]
		if err != nil {
			return err
		}
	}
	h.running = true
	return nil
}

func (h *fakeHost) OnExecutor(ctx context.Context) bool {
	return h.exec.OnExecutor(ctx)
}

func (h *fakeHost) Schedule(fn func(ctx context.Context)) {
	h.exec.Schedule(fn)
}

func (h *fakeHost) calls() (stops, starts int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops, h.starts
}

func (h *fakeHost) Messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

func (h *fakeHost) said(substr string) bool {
	for _, m := range h.Messages() {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type testEnv struct {
	deps    Deps
	host    *fakeHost
	clock   *clockwork.FakeClock
	catalog *catalog.Catalog
	reg     *Registry
	bus     *event.Bus
	server  string
	ctx     context.Context
}

// newTestEnv builds a running executor, a fake clock, a real catalog and a
// server directory holding world/level.dat and server.properties.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	exec := host.NewExecutor(nil)
	go func() { _ = exec.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-exec.Stopped()
	})

	root := t.TempDir()
	server := filepath.Join(root, "server")
	writeFile(t, filepath.Join(server, "world", "level.dat"), "old-world")
	writeFile(t, filepath.Join(server, "world", "region", "r.0.0.mca"), "old-region")
	writeFile(t, filepath.Join(server, "server.properties"), "motd=hi")

	cat, err := catalog.New(catalog.Options{Root: filepath.Join(root, "slots"), RandomPercentage: 100, MaxRandom: 10})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}

	ignore, err := fsutil.NewMatcher([]string{"session.lock"})
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}

	clock := clockwork.NewFakeClockAt(testEpoch)
	bus := event.NewBus(nil)
	reg := NewRegistry(bus, clock, nil)
	fh := &fakeHost{exec: exec, running: true}

	return &testEnv{
		deps: Deps{
			Registry: reg,
			Host:     fh,
			Catalog:  cat,
			Clock:    clock,
			Bus:      bus,
			Swap: SwapSettings{
				ServerDir:  server,
				TempFolder: "temp",
				WorldItems: []string{"world"},
				Ignore:     ignore,
			},
		},
		host:    fh,
		clock:   clock,
		catalog: cat,
		reg:     reg,
		bus:     bus,
		server:  server,
		ctx:     ctx,
	}
}

// addSlot creates a slot with info.json and the given files (relative
// path to content).
func (e *testEnv) addSlot(t *testing.T, name string, files map[string]string) {
	t.Helper()
	dir := e.catalog.SlotDir(name)
	info, _ := json.Marshal(map[string]any{"last_used": nil, "comment": ""})
	writeFile(t, filepath.Join(dir, catalog.InfoFileName), string(info))
	for rel, content := range files {
		writeFile(t, filepath.Join(dir, rel), content)
	}
}

// do runs fn on the executor and waits for it.
func (e *testEnv) do(t *testing.T, fn func(ctx context.Context) error) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.host.exec.Do(ctx, fn)
}

// recordEvents subscribes to every event type and returns a getter.
func (e *testEnv) recordEvents() func() []string {
	var mu sync.Mutex
	var types []string
	e.bus.SubscribeAll(func(ev event.Event) {
		mu.Lock()
		types = append(types, ev.EventType())
		mu.Unlock()
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), types...)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(data)
}

// snapshotTree maps every regular file under dir to its content and every
// symlink to "-> target".
func snapshotTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			files[rel] = "-> " + target
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot %s: %v", dir, err)
	}
	return files
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// blockUntil waits for n fake clock waiters.
func blockUntil(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d clock waiters: %v", n, err)
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session to finish")
	}
}

var errBoom = errors.New("boom")
