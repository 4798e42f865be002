/*
vm64 - Command-line entry point

Copyright (c) 2026, VM64 Project Contributors

Permission is hereby granted, free of charge, to any person obtaining a
copy of this software and associated documentation files (the "Software"),
to deal in the Software without restriction, including without limitation
the rights to use, copy, modify, merge, publish, distribute, sublicense,
and/or sell copies of the Software, and to permit persons to whom the
Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL
THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER
DEALINGS IN THE SOFTWARE.
*/

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/virtuacore/vm64/internal/logging"
	"github.com/virtuacore/vm64/internal/orchestrator"
)

func main() {
	optMemSize := getopt.Uint64Long("mem", 'm', 1<<24, "Guest memory size in bytes")
	optCores := getopt.IntLong("cores", 'c', 1, "Number of cores")
	optBoot := getopt.StringLong("boot", 'b', "", "Boot image path")
	optExtDir := getopt.StringLong("ext", 'e', "", "Extension module directory")
	optNoClock := getopt.BoolLong("noclock", 't', "Suppress the internal clock")
	optDebug := getopt.BoolLong("debug", 'd', "Enable the debugger gate")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logFile *os.File
	if *optLogFile != "" {
		logFile, _ = os.Create(*optLogFile)
	}
	var mask logging.Category
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	logger := slog.New(logging.NewHandler(logFile, &slog.HandlerOptions{Level: programLevel}, &mask))
	slog.SetDefault(logger)

	if *optBoot == "" {
		slog.Error("a boot image path is required (-b)")
		os.Exit(orchestrator.ExitBootImageOpen)
	}

	cfg := orchestrator.Config{
		MemSize:   *optMemSize,
		NumCores:  *optCores,
		BootImage: *optBoot,
		ExtDir:    *optExtDir,
		NoClock:   *optNoClock,
		DebugGate: *optDebug,
	}

	orch := orchestrator.New(cfg, &mask)
	if err := orch.Boot(); err != nil {
		slog.Error("boot failed", "error", err.Error())
		os.Exit(orchestrator.ExitBootImageLoad)
	}
	slog.Info("vm64 booted", "cores", cfg.NumCores, "mem", cfg.MemSize)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	consoleDone := make(chan struct{})
	go func() {
		orch.RunConsole()
		close(consoleDone)
	}()

	select {
	case <-sigChan:
		slog.Info("received shutdown signal")
	case <-consoleDone:
		slog.Info("debugger console exited")
	}

	orch.Stop()
	slog.Info("vm64 stopped")
}
