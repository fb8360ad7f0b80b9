package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// entry is one in-flight action and its coordination channels
type entry struct {
	mu       sync.Mutex
	action   models.ScalingAction
	workload models.Workload

	// set under mu once a cancel is accepted; blocks confirmation
	cancelReason string

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
}

func newEntry(action models.ScalingAction, w models.Workload) *entry {
	return &entry{
		action:   action,
		workload: w,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (e *entry) snapshot() models.ScalingAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.action.Snapshot()
}

func (e *entry) state() models.ActionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.action.State
}

func (e *entry) requestCancel() {
	e.cancelOnce.Do(func() { close(e.cancelCh) })
}

// markCancelled records a cancel request; callers hold e.mu
func (e *entry) markCancelled(reason string) {
	if e.cancelReason == "" {
		e.cancelReason = reason
	}
	e.requestCancel()
}

func (e *entry) cancelled() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelReason, e.cancelReason != ""
}

// Registry tracks the single in-flight action per workload and archives finished ones
type Registry struct {
	mu          sync.Mutex
	active      map[string]*entry
	byID        map[string]*entry
	archive     []models.ScalingAction
	archiveSize int
}

// NewRegistry creates a registry keeping up to archiveSize terminal actions
func NewRegistry(archiveSize int) *Registry {
	if archiveSize <= 0 {
		archiveSize = 1000
	}
	return &Registry{
		active:      make(map[string]*entry),
		byID:        make(map[string]*entry),
		archiveSize: archiveSize,
	}
}

// claim registers e as the owner of its workload
func (r *Registry) claim(e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := e.action.Workload
	if existing, ok := r.active[key]; ok {
		return fmt.Errorf("%w: %s (action %s)", ErrActionInFlight, key, existing.action.ID)
	}
	r.active[key] = e
	r.byID[e.action.ID] = e
	return nil
}

// release archives a terminal action and frees its workload
func (r *Registry) release(e *entry) {
	snap := e.snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[snap.Workload] == e {
		delete(r.active, snap.Workload)
	}
	delete(r.byID, snap.ID)

	r.archive = append(r.archive, snap)
	if len(r.archive) > r.archiveSize {
		r.archive = r.archive[len(r.archive)-r.archiveSize:]
	}
}

func (r *Registry) lookup(workload string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.active[workload]
	return e, ok
}

func (r *Registry) lookupID(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	return e, ok
}

func (r *Registry) entries() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.active))
	for _, e := range r.active {
		out = append(out, e)
	}
	return out
}

// Active returns snapshots of in-flight actions ordered by workload
func (r *Registry) Active() []models.ScalingAction {
	entries := r.entries()
	out := make([]models.ScalingAction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Workload < out[j].Workload })
	return out
}

// Archived returns terminal actions, oldest first
func (r *Registry) Archived() []models.ScalingAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ScalingAction, len(r.archive))
	copy(out, r.archive)
	return out
}

// Find returns an action by ID, or the latest archived action for a workload key
func (r *Registry) Find(ref string) (models.ScalingAction, bool) {
	if e, ok := r.lookupID(ref); ok {
		return e.snapshot(), true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.archive) - 1; i >= 0; i-- {
		if r.archive[i].ID == ref || r.archive[i].Workload == ref {
			return r.archive[i], true
		}
	}
	return models.ScalingAction{}, false
}
