/*
vm64 - Extension instruction set loader

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

// Package ext resolves and loads the dynamically loadable "extension
// instruction set" modules named by initext/destext (spec §6.5). It
// knows nothing about the dispatch table or Core type: it loads a
// plugin.Plugin by the fixed filename template, pulls out the five
// exported symbols, and hands the caller opaque plugin.Symbol values to
// type-assert against its own dispatch function type. That keeps this
// package import-cycle-free with respect to the cpu package, which is
// the one place the Symbol values get their concrete meaning.
package ext

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FilenamePrefix and FileExt compose the fixed filename template from
// §6.5: <dir>/<prefix>id<id>.<name>.<ext>.
const (
	FilenamePrefix = "vm64ext"
	FileExt        = "so"
)

// Path builds the filename a module with the given id and registered
// name must be found at under dir.
func Path(dir string, id int, name string) string {
	return filepath.Join(dir, fmt.Sprintf("%sid%d.%s.%s", FilenamePrefix, id, name, FileExt))
}

// Module is a resolved, loaded extension module ready for the caller to
// validate and install. Instructions is left as interface{} (in practice
// a plugin.Symbol backing a []cpu.DispatchFunc); the cpu package performs
// the type assertion since it alone knows the dispatch function type.
type Module struct {
	ID           int
	Name         string
	InstCount    int
	SpaceStart   int
	Instructions interface{}
}

// Load opens the plugin at the fixed path for id/name under dir and reads
// its five exported symbols. Any failure here is reported to the caller
// as an error; per §6.5 and §7, a verification failure after Load is
// fatal to the process, but Load itself only reports whether the module
// could be opened and introspected.
func Load(dir string, id int, name string) (*Module, error) {
	path := Path(dir, id, name)
	p, err := plugin.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open extension module %s", path)
	}

	idSym, err := p.Lookup("ID")
	if err != nil {
		return nil, errors.Wrapf(err, "extension %s: missing ID symbol", path)
	}
	nameSym, err := p.Lookup("Name")
	if err != nil {
		return nil, errors.Wrapf(err, "extension %s: missing Name symbol", path)
	}
	instCountSym, err := p.Lookup("InstCount")
	if err != nil {
		return nil, errors.Wrapf(err, "extension %s: missing InstCount symbol", path)
	}
	spaceStartSym, err := p.Lookup("SpaceStart")
	if err != nil {
		return nil, errors.Wrapf(err, "extension %s: missing SpaceStart symbol", path)
	}
	instructionsSym, err := p.Lookup("Instructions")
	if err != nil {
		return nil, errors.Wrapf(err, "extension %s: missing Instructions symbol", path)
	}

	gotID, ok := idSym.(*int)
	if !ok {
		return nil, errors.Errorf("extension %s: ID symbol has wrong type", path)
	}
	gotName, ok := nameSym.(*string)
	if !ok {
		return nil, errors.Errorf("extension %s: Name symbol has wrong type", path)
	}
	gotInstCount, ok := instCountSym.(*int)
	if !ok {
		return nil, errors.Errorf("extension %s: InstCount symbol has wrong type", path)
	}
	gotSpaceStart, ok := spaceStartSym.(*int)
	if !ok {
		return nil, errors.Errorf("extension %s: SpaceStart symbol has wrong type", path)
	}

	return &Module{
		ID:           *gotID,
		Name:         *gotName,
		InstCount:    *gotInstCount,
		SpaceStart:   *gotSpaceStart,
		Instructions: instructionsSym,
	}, nil
}

// ScanNames discovers the id->name contract initext is checked against
// by globbing dir for files matching the fixed filename template and
// parsing the id and name back out of each match. The template already
// carries both fields, so the orchestrator needs no separate extension
// manifest: whatever is dropped in the extension directory at boot
// becomes the registered set.
func ScanNames(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]string{}, nil
		}
		return nil, errors.Wrapf(err, "scan extension directory %s", dir)
	}

	names := make(map[int]string)
	prefix := FilenamePrefix + "id"
	suffix := "." + FileExt
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base := e.Name()
		if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, suffix) {
			continue
		}
		middle := strings.TrimSuffix(strings.TrimPrefix(base, prefix), suffix)
		dot := strings.IndexByte(middle, '.')
		if dot < 0 {
			continue
		}
		id, err := strconv.Atoi(middle[:dot])
		if err != nil {
			continue
		}
		names[id] = middle[dot+1:]
	}
	return names, nil
}
