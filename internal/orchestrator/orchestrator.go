/*
vm64 - Process orchestrator

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

// Package orchestrator wires every subsystem together the way the
// teacher's main.go wires channels, the CPU goroutine and the telnet
// servers: allocate memory, load the boot image, build the cores and
// their dispatch table, spawn clocks/distributor/I-O plane, and hand
// control to the debugger console.
package orchestrator

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/virtuacore/vm64/internal/clock"
	"github.com/virtuacore/vm64/internal/cpu"
	"github.com/virtuacore/vm64/internal/debugger"
	"github.com/virtuacore/vm64/internal/distributor"
	"github.com/virtuacore/vm64/internal/ext"
	"github.com/virtuacore/vm64/internal/ioplane"
	"github.com/virtuacore/vm64/internal/logging"
	"github.com/virtuacore/vm64/internal/memory"
)

// Exit codes, negative and keyed by failure kind per §6.1. cmd/vm64 exits
// with ExitBootImageOpen when no boot image path is given and with
// ExitBootImageLoad for every error Boot returns, whatever its kind; a
// failed extension verification exits with ExitExtensionFatal. The other
// codes are not returned by any path.
const (
	ExitBadMemorySize  = -1
	ExitBootImageOpen  = -2
	ExitBootImageLoad  = -3
	ExitBadCoreCount   = -4
	ExitAlreadyBooted  = -5
	ExitExtensionScan  = -6
	ExitExtensionFatal = -7
)

// Config mirrors the §6.1 command-line surface.
type Config struct {
	MemSize    uint64
	NumCores   int
	BootImage  string
	ExtDir     string
	NoClock    bool
	DebugGate  bool
}

// Orchestrator owns every long-lived subsystem for one VM instance.
type Orchestrator struct {
	cfg   Config
	mem   *memory.Memory
	table *cpu.DispatchTable
	cores []*cpu.Core

	clocks []*clock.Producer
	dist   *distributor.Distributor
	io     *ioplane.Plane
	dbg    *debugger.Debugger

	mask *logging.Category

	booted bool
}

// New constructs an orchestrator around a shared debug-category mask
// (nil disables the debug command entirely).
func New(cfg Config, mask *logging.Category) *Orchestrator {
	return &Orchestrator{cfg: cfg, mask: mask}
}

// starterAdapter satisfies ioplane.Starter over the orchestrator's core set.
type starterAdapter struct{ cores []*cpu.Core }

func (s starterAdapter) SetStart(index int, v bool) {
	if index >= 0 && index < len(s.cores) {
		s.cores[index].SetStart(v)
	}
}

// Boot allocates memory, loads the boot image, constructs the cores and
// spawns every subsystem goroutine. Calling Boot twice is refused,
// preserving the original implementation's "refuse a second instance"
// guard in spirit even though the underlying single-instance lock file
// is itself out of scope here.
func (o *Orchestrator) Boot() error {
	if o.booted {
		return errors.New("orchestrator already booted")
	}
	if o.cfg.NumCores < 1 {
		return errors.Errorf("invalid core count %d", o.cfg.NumCores)
	}
	if o.cfg.MemSize == 0 {
		return errors.New("memory size must be nonzero")
	}

	o.mem = memory.New(o.cfg.MemSize)
	o.mem.Zero()

	img, err := os.ReadFile(o.cfg.BootImage)
	if err != nil {
		return errors.Wrapf(err, "open boot image %s", o.cfg.BootImage)
	}
	if uint64(len(img)) > o.cfg.MemSize {
		return errors.Errorf("boot image (%d bytes) larger than guest memory (%d bytes)", len(img), o.cfg.MemSize)
	}
	if !o.mem.Load(0, img) {
		return errors.New("failed to load boot image into guest memory")
	}

	o.table = cpu.NewDispatchTable()

	names, err := ext.ScanNames(o.cfg.ExtDir)
	if err != nil {
		return errors.Wrap(err, "scan extension directory")
	}

	o.cores = make([]*cpu.Core, o.cfg.NumCores)
	for i := 0; i < o.cfg.NumCores; i++ {
		c := cpu.New(uint64(i), o.mem, o.table, o.cfg.ExtDir)
		c.RegisterExtensionNames(names)
		c.SetFatal(func(reason string) {
			slog.Error("extension verification failed, terminating", "reason", reason)
			os.Exit(ExitExtensionFatal)
		})
		c.SetDebugEnabled(o.cfg.DebugGate)
		o.cores[i] = c
	}

	// Core 0's start flag is set before any goroutine is spawned, so the
	// first core never races its own enabling.
	o.cores[0].SetStart(true)

	o.io = ioplane.New(starterAdapter{cores: o.cores}, len(o.cores))
	for _, c := range o.cores {
		c.SetIOPorts(o.io)
	}

	distCores := make([]distributor.Core, len(o.cores))
	for i, c := range o.cores {
		distCores[i] = c
	}
	o.dist = distributor.New(distCores)

	for _, c := range o.cores {
		go c.Run()
	}
	if !o.cfg.NoClock {
		o.clocks = make([]*clock.Producer, len(o.cores))
		for i, c := range o.cores {
			o.clocks[i] = clock.Start(c)
		}
	}
	o.dist.Start()
	o.io.Start()

	o.dbg = debugger.New(o.cores, o.mask)
	o.booted = true
	return nil
}

// RunConsole blocks running the debugger console until `quit` or EOF.
func (o *Orchestrator) RunConsole() {
	o.dbg.Run()
}

// Stop unwinds every goroutine in reverse spawn order.
func (o *Orchestrator) Stop() {
	if !o.booted {
		return
	}
	o.io.Stop()
	o.dist.Stop()
	for _, cl := range o.clocks {
		cl.Stop()
	}
	for _, c := range o.cores {
		c.SetStart(false)
		c.Stop()
	}
	o.booted = false
}

// Distributor exposes the interrupt distributor for external injection
// (e.g. a device simulator posting DEVICE interrupts).
func (o *Orchestrator) Distributor() *distributor.Distributor { return o.dist }

// IOPlane exposes the I/O control plane for external device wiring.
func (o *Orchestrator) IOPlane() *ioplane.Plane { return o.io }
