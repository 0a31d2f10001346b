package main

import (
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/wippyai/ffiobject/errors"
	"github.com/wippyai/ffiobject/guest"
)

// options is the resolved run configuration: defaults, then the config file,
// then explicit flags.
type options struct {
	WasmFile         string
	Func             string
	Data             string
	LogLevel         string
	ArenaBase        uint32
	MemoryLimitPages uint32
}

type fileConfig struct {
	Wasm             string `toml:"wasm"`
	Func             string `toml:"func"`
	Data             string `toml:"data"`
	LogLevel         string `toml:"log_level"`
	ArenaBase        int64  `toml:"arena_base"`
	MemoryLimitPages int64  `toml:"memory_limit_pages"`
}

func defaultOptions() options {
	return options{
		Func:     "array_set0",
		Data:     "Test",
		LogLevel: "warn",
	}
}

func loadConfig(path string, opts options) (options, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return options{}, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Cause(err).
			Detail("load %s", path).
			Build()
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return options{}, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(undecoded[0].String()).
			Detail("unknown key").
			Build()
	}

	if meta.IsDefined("wasm") {
		opts.WasmFile = strings.TrimSpace(raw.Wasm)
	}
	if meta.IsDefined("func") {
		opts.Func = strings.TrimSpace(raw.Func)
	}
	if meta.IsDefined("data") {
		opts.Data = raw.Data
	}
	if meta.IsDefined("log_level") {
		opts.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("arena_base") {
		if raw.ArenaBase < 0 || raw.ArenaBase > 1<<32-1 {
			return options{}, outOfRange("arena_base", raw.ArenaBase)
		}
		opts.ArenaBase = uint32(raw.ArenaBase)
	}
	if meta.IsDefined("memory_limit_pages") {
		if raw.MemoryLimitPages < 0 || raw.MemoryLimitPages > 65536 {
			return options{}, outOfRange("memory_limit_pages", raw.MemoryLimitPages)
		}
		opts.MemoryLimitPages = uint32(raw.MemoryLimitPages)
	}

	return opts, nil
}

func outOfRange(key string, v int64) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(key).
		Value(v).
		Detail("%d out of range", v).
		Build()
}

func (o options) guestConfig(logger *zap.Logger) *guest.Config {
	return &guest.Config{
		Logger:           logger,
		MemoryLimitPages: o.MemoryLimitPages,
		ArenaBase:        o.ArenaBase,
	}
}

// newLogger builds the CLI logger. Verbose mode switches to zap's development
// config regardless of the configured level.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("log_level").
			Cause(err).
			Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	return cfg.Build()
}
