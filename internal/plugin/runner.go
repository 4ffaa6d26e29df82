package plugin

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/store"
)

// maxConcurrent bounds plugin processes running at once.
const maxConcurrent = 4

// HookStore is the subset of store.HookRepository the runner needs.
type HookStore interface {
	List() ([]*store.Hook, error)
	ListEnabled(event string) ([]*store.Hook, error)
	Create(h *store.Hook) error
}

// Runner executes plugins in response to rep events. Hook lookup and
// plugins run in their own goroutines so HandleEvent never blocks the frame
// loop.
type Runner struct {
	manager  *Manager
	executor *Executor
	hooks    HookStore
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}

	// mu orders wg.Add in HandleEvent against wg.Wait in Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a runner. With a nil hook store every plugin that
// subscribes to an event in its manifest runs with an empty config.
func NewRunner(manager *Manager, executor *Executor, hooks HookStore, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		manager:  manager,
		executor: executor,
		hooks:    hooks,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// SyncHooks creates an enabled hook for every manifest event that has no
// hook yet. Existing hooks, including disabled ones, are left alone.
func (r *Runner) SyncHooks() (int, error) {
	if r.hooks == nil {
		return 0, nil
	}

	existing, err := r.hooks.List()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, h := range existing {
		seen[h.PluginName+"/"+h.Event] = true
	}

	created := 0
	for _, p := range r.manager.List() {
		for _, ev := range p.Manifest.Events {
			if seen[p.Manifest.Name+"/"+ev] {
				continue
			}
			h := &store.Hook{
				ID:         uuid.NewString(),
				PluginName: p.Manifest.Name,
				Event:      ev,
				Enabled:    true,
			}
			if err := r.hooks.Create(h); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

type job struct {
	plugin *Plugin
	config json.RawMessage
}

// jobs resolves which plugins run for an event.
func (r *Runner) jobs(event string) []job {
	if r.hooks == nil {
		var out []job
		for _, p := range r.manager.ForEvent(event) {
			out = append(out, job{plugin: p})
		}
		return out
	}

	hooks, err := r.hooks.ListEnabled(event)
	if err != nil {
		r.log.Warn("load plugin hooks", "event", event, "error", err)
		return nil
	}

	var out []job
	for _, h := range hooks {
		p, err := r.manager.Get(h.PluginName)
		if err != nil {
			r.log.Debug("hook for missing plugin", "plugin", h.PluginName, "event", event)
			continue
		}
		out = append(out, job{plugin: p, config: h.Config})
	}
	return out
}

// HandleEvent starts every plugin bound to the event type. Hook lookup
// happens off the caller's goroutine.
func (r *Runner) HandleEvent(e exercise.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.wg.Add(1)
	go r.dispatch(e)
}

func (r *Runner) dispatch(e exercise.Event) {
	defer r.wg.Done()

	for _, j := range r.jobs(string(e.Type)) {
		if r.ctx.Err() != nil {
			return
		}
		req := NewRequest(e, j.config)
		r.wg.Add(1)
		go r.run(j.plugin, req)
	}
}

func (r *Runner) run(p *Plugin, req *Request) {
	defer r.wg.Done()

	select {
	case r.sem <- struct{}{}:
	case <-r.ctx.Done():
		return
	}
	defer func() { <-r.sem }()

	resp, err := r.executor.Execute(r.ctx, p, req)
	switch {
	case err != nil:
		r.log.Warn("plugin failed", "plugin", p.Manifest.Name, "event", req.Event, "error", err)
	case !resp.Success:
		r.log.Warn("plugin reported error", "plugin", p.Manifest.Name, "event", req.Event, "error", resp.Error)
	default:
		r.log.Debug("plugin ran", "plugin", p.Manifest.Name, "event", req.Event)
	}
}

// Wait blocks until all started plugins have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels running plugins and waits for them to exit. Events
// handled after Close are dropped.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
}
