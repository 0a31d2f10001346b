package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/ffiobject"
	"github.com/wippyai/ffiobject/guest"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to guest wasm module")
		funcName    = flag.String("func", "", "Guest export to call with the object (default array_set0)")
		data        = flag.String("data", "", "Bytes to send in the data array (default \"Test\")")
		configFile  = flag.String("config", "", "TOML config file")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose development logging")
	)
	flag.Parse()

	opts := defaultOptions()
	if *configFile != "" {
		var err error
		if opts, err = loadConfig(*configFile, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// explicit flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "wasm":
			opts.WasmFile = *wasmFile
		case "func":
			opts.Func = *funcName
		case "data":
			opts.Data = *data
		}
	})

	if opts.WasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: ffirun -wasm <file.wasm> [-func name] [-data bytes] [-config file.toml] [-v]")
		fmt.Fprintln(os.Stderr, "       ffirun -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       ffirun -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	logger, err := newLogger(opts.LogLevel, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ffiobject.SetLogger(logger.Named("object"))
	guest.SetLogger(logger.Named("guest"))

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(context.Background(), os.Stdout, opts, logger, *list); err != nil {
		logger.Debug("run failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
