package board

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/corkboardapp/corkboard/internal/boardstore"
	"github.com/corkboardapp/corkboard/internal/config"
	"github.com/corkboardapp/corkboard/internal/notify"
	"github.com/corkboardapp/corkboard/internal/ratelimit"
)

// Registry looks up the actor for a board id, creating it on first use.
// One actor and one store per board; different boards run concurrently,
// sessions within a board are serialized by their actor.
type Registry struct {
	dataDir   string
	batch     config.BatchConfig
	sched     config.SchedulerConfig
	notifier  notify.Notifier
	generator Generator
	limiter   *ratelimit.Bucket

	mu     sync.Mutex
	actors map[string]*Actor
}

// RegistryConfig wires shared collaborators into every actor.
type RegistryConfig struct {
	DataDir   string
	Batch     config.BatchConfig
	Sched     config.SchedulerConfig
	Notifier  notify.Notifier
	Generator Generator
	Limiter   *ratelimit.Bucket
}

// NewRegistry creates an empty actor registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		dataDir:   cfg.DataDir,
		batch:     cfg.Batch,
		sched:     cfg.Sched,
		notifier:  cfg.Notifier,
		generator: cfg.Generator,
		limiter:   cfg.Limiter,
		actors:    make(map[string]*Actor),
	}
}

// Get returns the actor for a board id, opening its store and starting
// its scheduler on first access.
func (r *Registry) Get(boardID string) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors[boardID]; ok {
		return a, nil
	}

	dir := filepath.Join(r.dataDir, "boards")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating board dir: %w", err)
	}

	store, err := boardstore.Open(filepath.Join(dir, boardID+".db"))
	if err != nil {
		return nil, fmt.Errorf("opening board %s: %w", boardID, err)
	}

	a := New(Config{
		BoardID:   boardID,
		Store:     store,
		Generator: r.generator,
		Notifier:  r.notifier,
		Limiter:   r.limiter,
		Batch:     r.batch,
		Sched:     r.sched,
	})
	a.StartScheduler()
	r.actors[boardID] = a
	return a, nil
}

// SetNotifier swaps the notifier on all current actors, used when the
// config file is hot-reloaded.
func (r *Registry) SetNotifier(n notify.Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
	for _, a := range r.actors {
		a.SetNotifier(n)
	}
}

// CloseAll shuts down every actor.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.actors {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing board %s: %v\n", id, err)
		}
		delete(r.actors, id)
	}
}
