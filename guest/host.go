package guest

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/ffiobject/errors"
)

// HostModule is the import module name guests use for object operations.
const HostModule = "ffiobject"

// hostFunc describes one function exported to guests.
type hostFunc struct {
	name    string
	fn      func(b *Bridge, obj uint32) (uint64, error)
	results []api.ValueType
}

var hostFuncs = []hostFunc{
	{
		name: "release",
		fn: func(b *Bridge, obj uint32) (uint64, error) {
			return 0, b.Release(obj)
		},
	},
	{
		name: "kind",
		fn: func(b *Bridge, obj uint32) (uint64, error) {
			k, err := b.Kind(obj)
			return uint64(k), err
		},
		results: []api.ValueType{api.ValueTypeI64},
	},
	{
		name: "array_len",
		fn: func(b *Bridge, obj uint32) (uint64, error) {
			n, err := b.ArrayLen(obj)
			return api.EncodeU32(n), err
		},
		results: []api.ValueType{api.ValueTypeI32},
	},
	{
		name: "array_data",
		fn: func(b *Bridge, obj uint32) (uint64, error) {
			p, err := b.ArrayData(obj)
			return api.EncodeU32(p), err
		},
		results: []api.ValueType{api.ValueTypeI32},
	},
}

// instantiateHost registers the host module in rt. Calls are routed to the
// bridge of the calling guest, found by module name.
func instantiateHost(ctx context.Context, rt wazero.Runtime, lookup func(name string) *Bridge) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(HostModule)

	for _, hf := range hostFuncs {
		hf := hf // per-iteration copy; module targets go 1.21 loop semantics
		handler := func(ctx context.Context, mod api.Module, stack []uint64) {
			b := lookup(mod.Name())
			if b == nil {
				// trap the guest call
				panic(errors.NotFound(errors.PhaseHost, "guest instance", mod.Name()))
			}
			v, err := hf.fn(b, api.DecodeU32(stack[0]))
			if err != nil {
				b.logger.Debug("host call failed", zap.String("func", hf.name), zap.Error(err))
				panic(err)
			}
			if len(hf.results) > 0 {
				stack[0] = v
			}
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(handler), []api.ValueType{api.ValueTypeI32}, hf.results).
			WithParameterNames("obj").
			Export(hf.name)
	}

	return builder.Instantiate(ctx)
}
