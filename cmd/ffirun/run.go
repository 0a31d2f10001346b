package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/ffiobject"
	"github.com/wippyai/ffiobject/errors"
	"github.com/wippyai/ffiobject/guest"
)

func run(ctx context.Context, w io.Writer, opts options, logger *zap.Logger, listOnly bool) error {
	wasm, err := os.ReadFile(opts.WasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	rt, err := guest.NewRuntime(ctx, opts.guestConfig(logger))
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	inst, err := rt.Instantiate(ctx, wasm)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}

	fmt.Fprintf(w, "Guest: %s\n", opts.WasmFile)
	fmt.Fprintf(w, "\nExported functions:\n")
	for _, e := range inst.Exports() {
		marker := " "
		if e.AcceptsObject() {
			marker = "*"
		}
		fmt.Fprintf(w, " %s %s\n", marker, e.Signature())
	}

	if listOnly {
		return nil
	}

	fmt.Fprintf(w, "\nCalling %s(object)...\n", opts.Func)
	res, err := roundTrip(ctx, inst, opts.Func, []byte(opts.Data))
	if err != nil {
		return err
	}
	res.print(w)
	return nil
}

// roundTripResult describes one lower, call, lift cycle.
type roundTripResult struct {
	Before   []byte
	After    []byte
	Results  []uint64
	Kind     ffiobject.Kind
	Released bool
}

func (r roundTripResult) print(w io.Writer) {
	fmt.Fprintf(w, "Before:  %q\n", r.Before)
	if r.Released {
		fmt.Fprintf(w, "After:   released by guest (%s)\n", r.Kind)
	} else {
		fmt.Fprintf(w, "After:   %q\n", r.After)
	}
	if len(r.Results) > 0 {
		fmt.Fprintf(w, "Results: %v\n", r.Results)
	}
}

// roundTrip lowers data into the guest, calls fn with the object pointer and
// lifts the object back.
func roundTrip(ctx context.Context, inst *guest.Instance, fn string, data []byte) (res roundTripResult, err error) {
	var export *guest.Export
	for _, e := range inst.Exports() {
		if e.Name == fn {
			export = &e
			break
		}
	}
	if export == nil {
		return res, errors.NotFound(errors.PhaseHost, "export", fn)
	}
	if !export.AcceptsObject() {
		return res, errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("%s does not take an object pointer", export.Signature()))
	}

	b := inst.Bridge()
	res.Before = append([]byte(nil), data...)

	obj := ffiobject.FromSlice(append([]byte(nil), data...)).IntoObject()
	ptr, err := b.Lower(&obj)
	if err != nil {
		obj.Release()
		return res, fmt.Errorf("lower: %w", err)
	}
	defer func() {
		err = multierr.Append(err, b.Destroy(ptr))
	}()

	if res.Results, err = inst.Call(ctx, fn, uint64(ptr)); err != nil {
		return res, err
	}

	lifted, err := b.Lift(ptr)
	if err != nil {
		return res, fmt.Errorf("lift: %w", err)
	}
	defer lifted.Release()

	res.Kind = lifted.Kind
	if arr, ok := ffiobject.ArrayFrom[byte](&lifted); ok {
		res.After = append([]byte(nil), arr.AsSlice()...)
	} else {
		res.Released = lifted.IsEmpty()
	}
	return res, nil
}
