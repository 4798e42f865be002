/*
vm64 - Structured logging

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

// Package logging wraps log/slog the same way the teacher's util/logger
// does: one Handler writing to an optional log file and, above a
// threshold, to stderr. It adds a debug-category bitmask naming the
// subsystems (the core loop, the address translator, the interrupt
// plane, I/O, extensions). The Handler reads the mask only as a whole:
// while any bit is set, every record is mirrored to stderr. Records are
// not filtered by category.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Category is a bitmask of debug-trace subsystems (§ ambient stack).
type Category uint32

const (
	CatCmd Category = 1 << iota
	CatCore
	CatAddr
	CatIRQ
	CatIO
	CatExt
)

var categoryNames = map[string]Category{
	"CMD":  CatCmd,
	"CORE": CatCore,
	"ADDR": CatAddr,
	"IRQ":  CatIRQ,
	"IO":   CatIO,
	"EXT":  CatExt,
}

// ParseCategory resolves a category name as used by the "debug" command,
// case-insensitively.
func ParseCategory(name string) (Category, error) {
	cat, ok := categoryNames[strings.ToUpper(name)]
	if !ok {
		return 0, errors.New("unknown debug category: " + name)
	}
	return cat, nil
}

// Handler is the process-wide slog.Handler: text-formatted lines written
// to an optional file, and mirrored to stderr for warnings and above, or
// for anything at all once any debug category is enabled.
type Handler struct {
	out  io.Writer
	h    slog.Handler
	mu   *sync.Mutex
	mask *Category
}

func NewHandler(file io.Writer, opts *slog.HandlerOptions, mask *Category) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &Handler{
		out: file,
		h: slog.NewTextHandler(file, &slog.HandlerOptions{
			Level:     opts.Level,
			AddSource: opts.AddSource,
		}),
		mu:   &sync.Mutex{},
		mask: mask,
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithAttrs(attrs), mu: h.mu, mask: h.mask}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithGroup(name), mu: h.mu, mask: h.mask}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	formattedTime := r.Time.Format("2006/01/02 15:04:05")

	strs := []string{formattedTime, level, r.Message}
	if r.NumAttrs() != 0 {
		r.Attrs(func(a slog.Attr) bool {
			strs = append(strs, a.Value.String())
			return true
		})
	}
	b := []byte(strings.Join(strs, " ") + "\n")

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write(b)
	}
	if r.Level >= slog.LevelWarn || (h.mask != nil && *h.mask != 0) {
		_, err = os.Stderr.Write(b)
	}
	return err
}
