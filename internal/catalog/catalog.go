// Package catalog manages the saved slots a server can be switched to.
//
// A slot is a directory under the catalog root containing an info.json
// with its last-used time and comment. The catalog lists slots
// least-recently-used first, picks random candidates from the stalest
// share of them, and records which slot is currently installed.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/fsutil"
	"github.com/Iron-Ham/mapswitch/internal/logging"
)

// currentFileName records the installed slot. It is a file, so it never
// shows up as a slot.
const currentFileName = ".current"

// Sentinel errors.
var (
	ErrNotFound     = errors.New("slot not found")
	ErrInvalidName  = errors.New("invalid slot name")
	ErrNoCandidates = errors.New("no slot available for random selection")
)

// Options configure a Catalog.
type Options struct {
	// Root is the directory holding one sub-directory per slot.
	Root string
	// RandomPercentage is the share (0-100] of least-recently-used slots PickRandom draws from.
	RandomPercentage float64
	// MaxRandom caps the random pool size.
	MaxRandom int
	// Rand is used by PickRandom; nil means a randomly seeded source.
	Rand *rand.Rand
	// Logger receives debug output; nil discards it.
	Logger *logging.Logger
}

// Catalog is the slot inventory. It is safe for concurrent use; metadata
// writes exclude readers through an RWMutex.
type Catalog struct {
	mu sync.RWMutex

	root      string
	percent   float64
	maxRandom int
	rng       *rand.Rand
	rngMu     sync.Mutex
	logger    *logging.Logger

	// cache is only trusted while Watch runs; otherwise every read hits disk.
	watching bool
	cache    []Slot
	valid    bool
}

// New opens the catalog at opts.Root, creating the directory if needed.
func New(opts Options) (*Catalog, error) {
	if opts.Root == "" {
		return nil, errors.New("catalog root must not be empty")
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("create catalog root: %w", err)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Catalog{
		root:      opts.Root,
		percent:   opts.RandomPercentage,
		maxRandom: opts.MaxRandom,
		rng:       rng,
		logger:    logger.With("component", "catalog"),
	}, nil
}

// Root returns the catalog directory.
func (c *Catalog) Root() string {
	return c.root
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// SlotDir returns the directory of slot name. It does not check existence.
func (c *Catalog) SlotDir(name string) string {
	return filepath.Join(c.root, name)
}

// Exists reports whether name is a slot.
func (c *Catalog) Exists(name string) bool {
	if !validName(name) {
		return false
	}
	info, err := os.Stat(filepath.Join(c.SlotDir(name), InfoFileName))
	return err == nil && info.Mode().IsRegular()
}

// List returns every slot, least recently used first (never-used slots
// lead). reverse flips the order. Slots whose info.json cannot be parsed
// are skipped and logged.
func (c *Catalog) List(reverse bool) ([]Slot, error) {
	slots, err := c.load()
	if err != nil {
		return nil, err
	}
	if reverse {
		out := make([]Slot, len(slots))
		for i, s := range slots {
			out[len(slots)-1-i] = s
		}
		return out, nil
	}
	return slots, nil
}

// load returns a private copy of the sorted slot list.
func (c *Catalog) load() ([]Slot, error) {
	c.mu.RLock()
	if c.watching && c.valid {
		out := append([]Slot(nil), c.cache...)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watching && c.valid {
		return append([]Slot(nil), c.cache...), nil
	}

	slots, err := c.scan()
	if err != nil {
		return nil, err
	}
	if c.watching {
		c.cache = slots
		c.valid = true
	}
	return append([]Slot(nil), slots...), nil
}

// scan must be called with mu held.
func (c *Catalog) scan() ([]Slot, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	slots := make([]Slot, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !validName(e.Name()) {
			continue
		}
		meta, err := readMetadata(c.SlotDir(e.Name()))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn("skipping slot with unreadable metadata", "slot", e.Name(), "error", err)
			}
			continue
		}
		slots = append(slots, Slot{Name: e.Name(), Metadata: meta})
	}
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i].LastUsed, slots[j].LastUsed
		if !a.Equal(b) {
			return a.Before(b)
		}
		return slots[i].Name < slots[j].Name
	})
	return slots, nil
}

// Count returns the number of slots.
func (c *Catalog) Count() (int, error) {
	slots, err := c.load()
	if err != nil {
		return 0, err
	}
	return len(slots), nil
}

// Get returns slot name.
func (c *Catalog) Get(name string) (Slot, error) {
	if !validName(name) {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, err := readMetadata(c.SlotDir(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Slot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Slot{}, err
	}
	return Slot{Name: name, Metadata: meta}, nil
}

// update applies fn to name's metadata under the write lock.
func (c *Catalog) update(name string, fn func(*Metadata)) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.SlotDir(name)
	meta, err := readMetadata(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	fn(&meta)
	if err := writeMetadata(dir, meta); err != nil {
		return err
	}
	c.valid = false
	return nil
}

// RecordUsage stores at as the slot's last-used time.
func (c *Catalog) RecordUsage(name string, at time.Time) error {
	err := c.update(name, func(m *Metadata) { m.LastUsed = at })
	if err == nil {
		c.logger.Debug("recorded slot usage", "slot", name, "at", at)
	}
	return err
}

// SetComment replaces the slot's comment.
func (c *Catalog) SetComment(name, comment string) error {
	return c.update(name, func(m *Metadata) { m.Comment = comment })
}

// Size returns the on-disk size of the slot in bytes.
func (c *Catalog) Size(name string) (int64, error) {
	if !c.Exists(name) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return fsutil.Size(c.SlotDir(name))
}

// RandomPoolSize returns how many of n slots are eligible for random
// selection: ceil(n * percentage / 100), capped at MaxRandom.
func (c *Catalog) RandomPoolSize(n int) int {
	size := int(math.Ceil(float64(n) * c.percent / 100))
	if c.maxRandom > 0 && size > c.maxRandom {
		size = c.maxRandom
	}
	if size > n {
		size = n
	}
	return size
}

// RandomPool returns the slots eligible for random selection before exclusions.
func (c *Catalog) RandomPool() ([]Slot, error) {
	slots, err := c.load()
	if err != nil {
		return nil, err
	}
	return slots[:c.RandomPoolSize(len(slots))], nil
}

// PickRandom picks uniformly from the random pool minus exclude.
func (c *Catalog) PickRandom(exclude ...string) (Slot, error) {
	pool, err := c.RandomPool()
	if err != nil {
		return Slot{}, err
	}
	candidates := pool[:0:0]
	for _, s := range pool {
		skip := false
		for _, ex := range exclude {
			if s.Name == ex {
				skip = true
				break
			}
		}
		if !skip {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return Slot{}, ErrNoCandidates
	}

	c.rngMu.Lock()
	i := c.rng.IntN(len(candidates))
	c.rngMu.Unlock()
	return candidates[i], nil
}

// Current returns the installed slot, or "" if unknown.
func (c *Catalog) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(c.root, currentFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SetCurrent records name as the installed slot. An empty name forgets it.
func (c *Catalog) SetCurrent(name string) error {
	if name == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := os.Remove(filepath.Join(c.root, currentFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear current slot: %w", err)
		}
		return nil
	}
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.WriteFile(filepath.Join(c.root, currentFileName), []byte(name+"\n"), 0644); err != nil {
		return fmt.Errorf("record current slot: %w", err)
	}
	return nil
}

func (c *Catalog) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
