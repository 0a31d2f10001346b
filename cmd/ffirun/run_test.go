package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/ffiobject/guest"
)

const testWasm = "testdata/object.wasm"

func testOptions() options {
	opts := defaultOptions()
	opts.WasmFile = testWasm
	return opts
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, testOptions(), zap.NewNop(), false); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"* array_set0(i32) -> ()",
		`Before:  "Test"`,
		`After:   "0000"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRun_List(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, testOptions(), zap.NewNop(), true); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.Contains(out.String(), "Before:") {
		t.Error("list mode must not call the guest")
	}
	if !strings.Contains(out.String(), "array_len(i32) -> (i64)") {
		t.Errorf("missing export listing:\n%s", out.String())
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	rt, err := guest.NewRuntime(ctx, nil)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	defer rt.Close(ctx)

	inst, err := rt.Instantiate(ctx, mustRead(t, testWasm))
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}

	tests := []struct {
		name     string
		fn       string
		data     string
		after    string
		released bool
		results  int
	}{
		{"set zero", "array_set0", "abc", "000", false, 0},
		{"length only", "array_len", "abcd", "abcd", false, 1},
		{"guest release", "drop", "gone", "", true, 0},
		{"empty", "array_set0", "", "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := roundTrip(ctx, inst, tt.fn, []byte(tt.data))
			if err != nil {
				t.Fatalf("roundTrip failed: %v", err)
			}
			if res.Released != tt.released {
				t.Errorf("Released = %v, want %v", res.Released, tt.released)
			}
			if string(res.After) != tt.after {
				t.Errorf("After = %q, want %q", res.After, tt.after)
			}
			if len(res.Results) != tt.results {
				t.Errorf("Results = %v", res.Results)
			}
			if inst.Bridge().Arena().Blocks() != 0 {
				t.Errorf("round trip leaked %d arena blocks", inst.Bridge().Arena().Blocks())
			}
		})
	}

	if _, err := roundTrip(ctx, inst, "missing", nil); err == nil {
		t.Error("expected error for unknown export")
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}
