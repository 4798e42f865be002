/*
vm64 - Debugger command interpreter

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

// Package debugger implements the process-wide command interpreter from
// §4.8: core?, core N, bp/rbp/lbp, stp/cont, start, mem, reg, plus the
// supplemental "debug <category> on|off" trace toggle. Its console front
// end mirrors the teacher's command/reader (peterh/liner with history and
// completion); command dispatch mirrors the teacher's command/parser
// table of {name, min, process} entries matched by unambiguous prefix.
package debugger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/virtuacore/vm64/internal/cpu"
	"github.com/virtuacore/vm64/internal/logging"
)

type cmd struct {
	name    string
	min     int
	process func(d *Debugger, args []string) (bool, error)
}

var cmdList = []cmd{
	{name: "core?", min: 5, process: cmdCoreQuery},
	{name: "core", min: 4, process: cmdCoreSelect},
	{name: "bp", min: 2, process: cmdBp},
	{name: "rbp", min: 3, process: cmdRbp},
	{name: "lbp", min: 3, process: cmdLbp},
	{name: "stp", min: 3, process: cmdStp},
	{name: "cont", min: 4, process: cmdCont},
	{name: "start", min: 5, process: cmdStart},
	{name: "mem", min: 3, process: cmdMem},
	{name: "reg", min: 3, process: cmdReg},
	{name: "debug", min: 5, process: cmdDebug},
	{name: "quit", min: 4, process: cmdQuit},
}

// Debugger is the process-wide interpreter state: the set of cores and
// which one is currently selected (-1 means none).
type Debugger struct {
	Cores    []*cpu.Core
	selected int
	mask     *logging.Category
}

// New constructs a Debugger over cores with no core selected, sharing the
// process's debug-category mask so "debug <category> on|off" takes
// effect immediately.
func New(cores []*cpu.Core, mask *logging.Category) *Debugger {
	return &Debugger{Cores: cores, selected: -1, mask: mask}
}

// Run drives the console loop: read, dispatch, print, until `quit` or the
// input stream aborts. Mirrors the teacher's ConsoleReader.
func (d *Debugger) Run() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(in string) []string { return d.complete(in) })

	for {
		text, err := line.Prompt("vm64> ")
		if err == nil {
			line.AppendHistory(text)
			quit, perr := d.Process(text)
			if perr != nil {
				fmt.Println("error: " + perr.Error())
			}
			if quit {
				return
			}
			continue
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		return
	}
}

// Process executes a single command line, returning true if the
// interpreter should exit.
func (d *Debugger) Process(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := fields[0], fields[1:]

	var matches []cmd
	for _, c := range cmdList {
		if strings.HasPrefix(c.name, name) && len(name) >= c.min {
			matches = append(matches, c)
		}
		if c.name == name {
			matches = []cmd{c}
			break
		}
	}
	if len(matches) == 0 {
		return false, errors.New("command not found: " + name)
	}
	if len(matches) > 1 {
		return false, errors.New("ambiguous command: " + name)
	}
	return matches[0].process(d, args)
}

func (d *Debugger) complete(line string) []string {
	var out []string
	for _, c := range cmdList {
		if strings.HasPrefix(c.name, line) {
			out = append(out, c.name)
		}
	}
	return out
}

func (d *Debugger) target() (*cpu.Core, error) {
	if d.selected < 0 || d.selected >= len(d.Cores) {
		return nil, errors.New("no core selected")
	}
	return d.Cores[d.selected], nil
}

func cmdCoreQuery(d *Debugger, args []string) (bool, error) {
	fmt.Printf("%d cores, selected=%d\n", len(d.Cores), d.selected)
	if len(args) > 0 && args[0] == "a" {
		for i, c := range d.Cores {
			s := c.Snapshot()
			fmt.Printf("core %d: running=%v debugging=%v ip=%016x\n", i, s.Running, s.Debugging, s.IP)
		}
	}
	return false, nil
}

func cmdCoreSelect(d *Debugger, args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("usage: core N")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n >= len(d.Cores) {
		return false, errors.New("invalid core index")
	}
	d.selected = n
	return false, nil
}

func cmdBp(d *Debugger, args []string) (bool, error) {
	c, err := d.target()
	if err != nil {
		return false, err
	}
	v, err := parseAddr(args)
	if err != nil {
		return false, err
	}
	return false, c.AddBreakpoint(v)
}

func cmdRbp(d *Debugger, args []string) (bool, error) {
	c, err := d.target()
	if err != nil {
		return false, err
	}
	v, err := parseAddr(args)
	if err != nil {
		return false, err
	}
	c.RemoveBreakpoint(v)
	return false, nil
}

func cmdLbp(d *Debugger, _ []string) (bool, error) {
	c, err := d.target()
	if err != nil {
		return false, err
	}
	for _, bp := range c.Breakpoints() {
		fmt.Printf("%016x\n", bp)
	}
	return false, nil
}

func cmdStp(d *Debugger, args []string) (bool, error) {
	c, err := d.target()
	if err != nil {
		return false, err
	}
	n := 1
	if len(args) > 0 {
		v, perr := strconv.Atoi(args[0])
		if perr != nil {
			return false, errors.New("invalid step count")
		}
		n = v
	}
	c.SetTrap(n)
	return false, nil
}

func cmdCont(d *Debugger, _ []string) (bool, error) {
	c, err := d.target()
	if err != nil {
		return false, err
	}
	c.SetContinue()
	return false, nil
}

func cmdStart(d *Debugger, _ []string) (bool, error) {
	c, err := d.target()
	if err != nil {
		return false, err
	}
	c.SetStart(true)
	return false, nil
}

func cmdMem(d *Debugger, args []string) (bool, error) {
	c, err := d.target()
	if err != nil {
		return false, err
	}
	if len(args) < 1 {
		return false, errors.New("usage: mem A [N]")
	}
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return false, errors.New("invalid address")
	}
	n := uint64(1)
	if len(args) > 1 {
		v, perr := strconv.ParseUint(args[1], 0, 64)
		if perr != nil {
			return false, errors.New("invalid length")
		}
		n = v
	}
	bytes, ok := c.Memory().ReadBytes(addr, n)
	if !ok {
		return false, errors.New("out of range")
	}
	fmt.Printf("% x\n", bytes)
	return false, nil
}

func cmdReg(d *Debugger, args []string) (bool, error) {
	c, err := d.target()
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		for i, x := range c.X {
			fmt.Printf("x%-2d %016x\n", i, x)
		}
		fmt.Printf("ip  %016x\n", c.IP)
		fmt.Printf("flg %016x\n", c.Flg)
		fmt.Printf("ivt %016x\n", c.Ivt)
		fmt.Printf("kpt %016x\n", c.Kpt)
		fmt.Printf("upt %016x\n", c.Upt)
		fmt.Printf("scp %016x\n", c.Scp)
		return false, nil
	}
	v, ok := regValue(c, strings.ToLower(args[0]))
	if !ok {
		return false, errors.New("unknown register: " + args[0])
	}
	fmt.Printf("%016x\n", v)
	return false, nil
}

func regValue(c *cpu.Core, name string) (uint64, bool) {
	switch name {
	case "ip":
		return c.IP, true
	case "flg":
		return c.Flg, true
	case "ivt":
		return c.Ivt, true
	case "kpt":
		return c.Kpt, true
	case "upt":
		return c.Upt, true
	case "scp":
		return c.Scp, true
	}
	if strings.HasPrefix(name, "x") {
		if n, err := strconv.Atoi(name[1:]); err == nil && n >= 0 && n < len(c.X) {
			return c.X[n], true
		}
	}
	return 0, false
}

func cmdDebug(d *Debugger, args []string) (bool, error) {
	if d.mask == nil {
		return false, errors.New("no debug mask installed")
	}
	if len(args) != 2 {
		return false, errors.New("usage: debug <category> on|off")
	}
	cat, err := logging.ParseCategory(args[0])
	if err != nil {
		return false, err
	}
	switch args[1] {
	case "on":
		*d.mask |= cat
	case "off":
		*d.mask &^= cat
	default:
		return false, errors.New("usage: debug <category> on|off")
	}
	return false, nil
}

func cmdQuit(_ *Debugger, _ []string) (bool, error) {
	return true, nil
}

func parseAddr(args []string) (uint64, error) {
	if len(args) != 1 {
		return 0, errors.New("usage: <cmd> V")
	}
	v, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return 0, errors.New("invalid address")
	}
	return v, nil
}
