package guest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/ffiobject/errors"
	"github.com/wippyai/ffiobject/resource"
)

// Config holds runtime configuration.
type Config struct {
	// Logger overrides the package logger.
	Logger *zap.Logger

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB
	// each). 0 means the wazero default.
	MemoryLimitPages uint32

	// ArenaBase is the first guest address the host allocator may use.
	// 0 places the arena at the end of the memory the guest was instantiated
	// with, past its data, stack and heap base.
	ArenaBase uint32
}

// Runtime hosts guest instances that share the "ffiobject" host module.
type Runtime struct {
	runtime   wazero.Runtime
	host      api.Module
	logger    *zap.Logger
	instances map[string]*Instance
	cfg       Config
	seq       atomic.Uint64
	mu        sync.RWMutex
}

// NewRuntime creates a runtime. cfg may be nil.
func NewRuntime(ctx context.Context, cfg *Config) (*Runtime, error) {
	r := &Runtime{instances: make(map[string]*Instance)}
	if cfg != nil {
		r.cfg = *cfg
	}
	r.logger = r.cfg.Logger
	if r.logger == nil {
		r.logger = Logger()
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if r.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(r.cfg.MemoryLimitPages)
	}
	r.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	host, err := instantiateHost(ctx, r.runtime, r.bridge)
	if err != nil {
		return nil, multierr.Append(errors.Load("instantiate host module", err), r.runtime.Close(ctx))
	}
	r.host = host
	return r, nil
}

func (r *Runtime) bridge(name string) *Bridge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if inst := r.instances[name]; inst != nil {
		return inst.bridge
	}
	return nil
}

// Instantiate compiles and instantiates a guest module. The guest must
// export its memory.
func (r *Runtime) Instantiate(ctx context.Context, wasm []byte) (*Instance, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile guest module", err)
	}

	name := fmt.Sprintf("guest-%d", r.seq.Add(1))
	mod, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, multierr.Append(errors.Instantiation(err), compiled.Close(ctx))
	}

	mem := WrapMemory(mod.ExportedMemory("memory"))
	if mem == nil {
		return nil, multierr.Combine(
			errors.Load("guest does not export memory", nil),
			mod.Close(ctx),
			compiled.Close(ctx),
		)
	}

	inst := &Instance{rt: r, name: name, module: mod, compiled: compiled, table: resource.NewTable()}
	inst.table.SetLogger(r.logger.Named("resource"))
	base := r.cfg.ArenaBase
	if base == 0 {
		base = mem.Size()
	}
	inst.bridge = NewBridge(mem, NewArena(mem, base), inst.table, r.logger.With(zap.String("guest", name)))

	r.mu.Lock()
	r.instances[name] = inst
	r.mu.Unlock()

	r.logger.Debug("guest instantiated", zap.String("guest", name), zap.Uint32("memory", mem.Size()), zap.Uint32("arena", base))
	return inst, nil
}

func (r *Runtime) forget(name string) {
	r.mu.Lock()
	delete(r.instances, name)
	r.mu.Unlock()
}

// Close closes every instance and the runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.RLock()
	open := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		open = append(open, inst)
	}
	r.mu.RUnlock()

	var err error
	for _, inst := range open {
		err = multierr.Append(err, inst.Close(ctx))
	}
	return multierr.Append(err, r.runtime.Close(ctx))
}

// Export describes a guest function export.
type Export struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// AcceptsObject reports whether the export takes a single object pointer.
func (e Export) AcceptsObject() bool {
	return len(e.Params) == 1 && e.Params[0] == api.ValueTypeI32
}

// Signature renders the export signature for display.
func (e Export) Signature() string {
	names := func(ts []api.ValueType) string {
		s := ""
		for i, t := range ts {
			if i > 0 {
				s += ", "
			}
			s += api.ValueTypeName(t)
		}
		return s
	}
	return fmt.Sprintf("%s(%s) -> (%s)", e.Name, names(e.Params), names(e.Results))
}

// Instance is one instantiated guest with its own memory, arena and box
// table. It is not safe for concurrent use.
type Instance struct {
	rt       *Runtime
	module   api.Module
	compiled wazero.CompiledModule
	table    *resource.Table
	bridge   *Bridge
	name     string
	closed   bool
}

// Name returns the module name of the guest.
func (i *Instance) Name() string {
	return i.name
}

// Bridge returns the object bridge for the guest's memory.
func (i *Instance) Bridge() *Bridge {
	return i.bridge
}

// Memory returns the guest memory.
func (i *Instance) Memory() *Memory {
	return i.bridge.mem
}

// Exports lists exported functions sorted by name.
func (i *Instance) Exports() []Export {
	defs := i.compiled.ExportedFunctions()
	out := make([]Export, 0, len(defs))
	for name, def := range defs {
		out = append(out, Export{Name: name, Params: def.ParamTypes(), Results: def.ResultTypes()})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Call invokes an exported guest function.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if i.closed {
		return nil, errors.InvalidInput(errors.PhaseHost, "instance is closed")
	}
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, "export", name)
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, fmt.Sprintf("call %s", name))
	}
	return results, nil
}

// Close releases every box still held for the guest and closes the module.
func (i *Instance) Close(ctx context.Context) error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.rt.forget(i.name)

	return multierr.Combine(
		i.table.Close(),
		i.module.Close(ctx),
		i.compiled.Close(ctx),
	)
}
