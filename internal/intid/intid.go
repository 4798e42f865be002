/*
vm64 - Interrupt ID wire contract

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

// Package intid holds the fixed interrupt ID numbering shared by the
// addressing unit, the instruction set, the core loop, and the IVT. It is
// split out from those packages to avoid import cycles between them.
package intid

import "strconv"

// Interrupt IDs. This numbering is a wire contract: guest IVTs are built
// against these exact values.
const (
	InvalidAddress          uint8 = 1
	Device                  uint8 = 2
	Clock                   uint8 = 3
	UnrecognizedInstruction uint8 = 4
	PermissionDenied        uint8 = 5
	InvalidIOPort           uint8 = 6
)

// Name returns a short mnemonic for an interrupt ID, used by the debugger
// and log lines. Unknown IDs (extensions may raise their own) print as a
// bare number.
func Name(id uint8) string {
	switch id {
	case InvalidAddress:
		return "INVALID_ADDRESS"
	case Device:
		return "DEVICE"
	case Clock:
		return "CLOCK"
	case UnrecognizedInstruction:
		return "UNRECOGNIZED_INSTRUCTION"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case InvalidIOPort:
		return "INVALID_IO_PORT"
	default:
		return strconv.Itoa(int(id))
	}
}
