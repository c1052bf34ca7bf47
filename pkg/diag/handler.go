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

package diag

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Handler receives diagnostics.
type Handler interface {
	// HandleEvent is called for every reported event.
	HandleEvent(ev *Event)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}

var (
	// DefaultHandler is the global handler. It defaults to a LogHandler
	// writing to stderr.
	DefaultHandler Handler = &LogHandler{}

	handlerMu sync.RWMutex
)

// SetHandler configures the global handler. Pass nil to restore the
// default LogHandler.
func SetHandler(h Handler) {
	handlerMu.Lock()
	defer handlerMu.Unlock()
	if h == nil {
		DefaultHandler = &LogHandler{}
	} else {
		DefaultHandler = h
	}
}

func getHandler() Handler {
	handlerMu.RLock()
	defer handlerMu.RUnlock()
	return DefaultHandler
}

// ReportTo sends an event to h, or to the global handler when h is nil.
// A zero Timestamp is set to the current time.
func ReportTo(h Handler, ev *Event) {
	if ev == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if h == nil {
		h = getHandler()
	}
	if h != nil {
		h.HandleEvent(ev)
	}
}

// ReportPanicTo sends a panic to h, or to the global handler when h is nil.
func ReportPanicTo(h Handler, err *PanicError) {
	if err == nil {
		return
	}
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	if h == nil {
		h = getHandler()
	}
	if h != nil {
		h.HandlePanic(err)
	}
}

// RecoverTo is a helper for deferred panic recovery. It reports to h, or
// to the global handler when h is nil.
// Usage: defer diag.RecoverTo(h, "operation.name")
func RecoverTo(h Handler, op string) {
	if r := recover(); r != nil {
		ReportPanicTo(h, &PanicError{
			Op:         op,
			Value:      r,
			StackTrace: CaptureStack(),
			Timestamp:  time.Now(),
		})
	}
}

// CaptureStack returns the current call stack as a string, without the
// CaptureStack frame itself.
func CaptureStack() string {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		sb.WriteString(frame.Function)
		sb.WriteString("\n\t")
		sb.WriteString(frame.File)
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(frame.Line))
		sb.WriteString("\n")
		if !more {
			break
		}
	}
	return sb.String()
}
