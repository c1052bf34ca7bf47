// copyright 2021 - 2023 matrix origin
//
// licensed under the apache license, version 2.0 (the "license");
// you may not use this file except in compliance with the license.
// you may obtain a copy of the license at
//
//      http://www.apache.org/licenses/license-2.0
//
// unless required by applicable law or agreed to in writing, software
// distributed under the license is distributed on an "as is" basis,
// without warranties or conditions of any kind, either express or implied.
// see the license for the specific language governing permissions and
// limitations under the license.

// Package diag reports ownership events that have no caller to return an
// error to: payloads failing to dispose, panics during destruction and
// cells still alive when their heap is closed.
package diag

import (
	"fmt"
	"time"
)

// Kind identifies the category of an event.
type Kind int

const (
	// KindUnknown indicates an event of unknown type.
	KindUnknown Kind = iota
	// KindDispose indicates a payload whose Dispose returned an error.
	KindDispose
	// KindLeak indicates cells that outlived their heap.
	KindLeak
)

func (k Kind) String() string {
	switch k {
	case KindDispose:
		return "dispose"
	case KindLeak:
		return "leak"
	default:
		return "unknown"
	}
}

// Event is a structured diagnostic.
type Event struct {
	// Op is the operation that produced the event (e.g. "rc.Drop").
	Op string
	// Kind categorizes the event.
	Kind Kind
	// Err is the underlying error.
	Err error
	// StackTrace is the call stack when the event was captured, if any.
	StackTrace string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

func (e *Event) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *Event) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked.
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
