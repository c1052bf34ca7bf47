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
	"fmt"
	"io"
	"os"
)

// LogHandler is a Handler that writes one line per diagnostic.
type LogHandler struct {
	// Verbose enables stack traces.
	Verbose bool
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

func (h *LogHandler) out() io.Writer {
	if h.Writer != nil {
		return h.Writer
	}
	return os.Stderr
}

// HandleEvent logs an Event.
func (h *LogHandler) HandleEvent(ev *Event) {
	if ev == nil {
		return
	}
	w := h.out()
	if h.Verbose {
		fmt.Fprintf(w, "[ownership %s] %s: %v (at %s)\n", ev.Kind, ev.Op, ev.Err, ev.Timestamp.Format("15:04:05.000"))
		if ev.StackTrace != "" {
			fmt.Fprintf(w, "Stack trace:\n%s\n", ev.StackTrace)
		}
	} else {
		fmt.Fprintf(w, "[ownership %s] %s: %v\n", ev.Kind, ev.Op, ev.Err)
	}
}

// HandlePanic logs a PanicError.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	w := h.out()
	if err.Op != "" {
		fmt.Fprintf(w, "[ownership panic] %s: %v\n", err.Op, err.Value)
	} else {
		fmt.Fprintf(w, "[ownership panic] %v\n", err.Value)
	}
	if h.Verbose && err.StackTrace != "" {
		fmt.Fprintf(w, "Stack trace:\n%s\n", err.StackTrace)
	}
}

// Recorder keeps every diagnostic it receives. Tests install it to assert
// on what was reported.
type Recorder struct {
	Events []*Event
	Panics []*PanicError
}

func (r *Recorder) HandleEvent(ev *Event) {
	r.Events = append(r.Events, ev)
}

func (r *Recorder) HandlePanic(err *PanicError) {
	r.Panics = append(r.Panics, err)
}

// Kinds returns the kinds of the recorded events, in order.
func (r *Recorder) Kinds() []Kind {
	kinds := make([]Kind, len(r.Events))
	for i, ev := range r.Events {
		kinds[i] = ev.Kind
	}
	return kinds
}
