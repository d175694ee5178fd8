package pipeline

import (
	"sync"

	"github.com/siteforge/pipeline/models"
)

// EngineEventArgs accompanies BeforeEngineExecution and BeforeDeployment.
type EngineEventArgs struct {
	ExecutionID string
}

// AfterEngineEventArgs accompanies AfterEngineExecution.
type AfterEngineEventArgs struct {
	ExecutionID string
	Outputs     map[string]models.Batch
	ElapsedMS   int64
	Err         error
}

// ModuleEventArgs accompanies BeforeModuleExecution and
// AfterModuleExecution. A handler may set OverriddenOutputs to suppress the
// module's own Execute call (BeforeModuleExecution) or replace what it
// produced (AfterModuleExecution); HasOverride distinguishes "explicitly
// set to an empty batch" from "left untouched".
type ModuleEventArgs struct {
	Context           *ExecutionContext
	Module            Module
	Outputs           models.Batch
	ElapsedMS         int64
	OverriddenOutputs models.Batch
	HasOverride       bool
}

// eventBus keeps an ordered handler list per event point. Raising an
// event invokes its handlers in registration order and stops at the first
// error, surfacing it to the caller; each raise reports whether at least
// one handler was registered.
type eventBus struct {
	mu        sync.RWMutex
	before    []func(*EngineEventArgs) error
	after     []func(*AfterEngineEventArgs) error
	deploy    []func(*EngineEventArgs) error
	beforeMod []func(*ModuleEventArgs) error
	afterMod  []func(*ModuleEventArgs) error
}

func newEventBus() *eventBus {
	return &eventBus{}
}

func (b *eventBus) OnBeforeEngineExecution(h func(*EngineEventArgs) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.before = append(b.before, h)
}

func (b *eventBus) OnAfterEngineExecution(h func(*AfterEngineEventArgs) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.after = append(b.after, h)
}

func (b *eventBus) OnBeforeDeployment(h func(*EngineEventArgs) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deploy = append(b.deploy, h)
}

func (b *eventBus) OnBeforeModuleExecution(h func(*ModuleEventArgs) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beforeMod = append(b.beforeMod, h)
}

func (b *eventBus) OnAfterModuleExecution(h func(*ModuleEventArgs) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.afterMod = append(b.afterMod, h)
}

func (b *eventBus) raiseBeforeEngineExecution(args *EngineEventArgs) (bool, error) {
	b.mu.RLock()
	hs := append([]func(*EngineEventArgs) error{}, b.before...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(args); err != nil {
			return true, err
		}
	}
	return len(hs) > 0, nil
}

func (b *eventBus) raiseAfterEngineExecution(args *AfterEngineEventArgs) (bool, error) {
	b.mu.RLock()
	hs := append([]func(*AfterEngineEventArgs) error{}, b.after...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(args); err != nil {
			return true, err
		}
	}
	return len(hs) > 0, nil
}

func (b *eventBus) raiseBeforeDeployment(args *EngineEventArgs) (bool, error) {
	b.mu.RLock()
	hs := append([]func(*EngineEventArgs) error{}, b.deploy...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(args); err != nil {
			return true, err
		}
	}
	return len(hs) > 0, nil
}

func (b *eventBus) raiseBeforeModuleExecution(args *ModuleEventArgs) (bool, error) {
	b.mu.RLock()
	hs := append([]func(*ModuleEventArgs) error{}, b.beforeMod...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(args); err != nil {
			return true, err
		}
	}
	return len(hs) > 0, nil
}

func (b *eventBus) raiseAfterModuleExecution(args *ModuleEventArgs) (bool, error) {
	b.mu.RLock()
	hs := append([]func(*ModuleEventArgs) error{}, b.afterMod...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(args); err != nil {
			return true, err
		}
	}
	return len(hs) > 0, nil
}
