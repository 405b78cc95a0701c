package mgr

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Module is a component with a managed lifecycle.
type Module interface {
	Start(mgr *Manager) error
	Stop(mgr *Manager) error
}

// Group starts modules in order and stops them in reverse order.
// All module managers share the group context.
type Group struct {
	modules []*groupModule

	ctx       context.Context
	cancelCtx context.CancelFunc
	ctxLock   sync.Mutex
}

type groupModule struct {
	name   string
	module Module
	mgr    *Manager
}

// NewGroup returns a new group of modules.
// Nil modules, including typed nil pointers of disabled optional modules, are
// left out.
func NewGroup(modules ...Module) *Group {
	g := &Group{
		modules: make([]*groupModule, 0, len(modules)),
	}
	g.ctx, g.cancelCtx = context.WithCancel(context.Background())

	for _, m := range modules {
		if isNil(m) {
			continue
		}
		name := moduleName(m)
		g.modules = append(g.modules, &groupModule{
			name:   name,
			module: m,
			mgr:    newManager(g.ctx, name, "module"),
		})
	}

	return g
}

func isNil(m Module) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// Modules returns the names of the modules in start order.
func (g *Group) Modules() []string {
	names := make([]string, 0, len(g.modules))
	for _, m := range g.modules {
		names = append(names, m.name)
	}
	return names
}

// Start starts all modules in order.
// If a module fails to start, it and all modules started before are stopped
// in reverse order.
func (g *Group) Start() error {
	for i, m := range g.modules {
		started := time.Now()
		if err := m.module.Start(m.mgr); err != nil {
			g.stopFrom(i)
			return fmt.Errorf("failed to start %s: %w", m.name, err)
		}
		m.mgr.Debug("started", "took", time.Since(started))
	}
	return nil
}

// Stop stops all modules in reverse order and waits for their workers.
// It returns false if any module failed to stop or left workers running.
func (g *Group) Stop() (ok bool) {
	return g.stopFrom(len(g.modules) - 1)
}

func (g *Group) stopFrom(index int) (ok bool) {
	ok = true
	for i := index; i >= 0; i-- {
		m := g.modules[i]
		if err := m.module.Stop(m.mgr); err != nil {
			m.mgr.Error("failed to stop", "err", err)
			ok = false
		}

		m.mgr.Cancel()
		if !m.mgr.WaitForWorkers(0) {
			m.mgr.Error("failed to stop", "err", "timed out", "workerCnt", m.mgr.WorkerCount())
			ok = false
			continue
		}
		m.mgr.Debug("stopped")
	}

	g.ctxLock.Lock()
	defer g.ctxLock.Unlock()
	g.cancelCtx()

	return ok
}

// Done returns a channel that is closed when the group was stopped.
func (g *Group) Done() <-chan struct{} {
	g.ctxLock.Lock()
	defer g.ctxLock.Unlock()

	return g.ctx.Done()
}

// IsDone checks whether the group was stopped.
func (g *Group) IsDone() bool {
	g.ctxLock.Lock()
	defer g.ctxLock.Unlock()

	return g.ctx.Err() != nil
}

// moduleName returns the type name of the module, eg. "alerting.Emitter".
func moduleName(m Module) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", m), "*")
}
