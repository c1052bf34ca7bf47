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

// Package rc provides reference-counted cells with strong and weak handles.
//
// A cell's payload lives on the Go heap while its control block (strong
// count, generation, live flag) lives off-heap in a buffer.Buffer owned by
// a Heap. The payload is destroyed deterministically when the last Strong
// handle is dropped, independently of the garbage collector. Weak handles
// never keep a payload alive and report ExpiredError once it is gone.
//
// Nothing in this package is safe for concurrent use.
package rc

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"ownership_experiment/pkg/buffer"
	"ownership_experiment/pkg/diag"
)

// control is allocated off-heap and recycled through Heap.free. gen is
// bumped every time the slot is released so that cells pointing at a
// recycled slot can tell it no longer belongs to them. A slot whose gen
// is exhausted is retired rather than wrapped.
type control struct {
	strong int64
	gen    uint64
	live   uint32
}

// Disposer is implemented by payloads that release resources, typically
// the Strong handles they hold, when their cell is destroyed.
type Disposer interface {
	Dispose() error
}

type destroyer interface {
	destroy()
}

// Heap owns the control blocks of the cells created in it.
type Heap struct {
	buf         *buffer.Buffer
	chunkSize   int
	free        []*control
	slots       int
	retired     int
	live        int
	closed      bool
	reportLeaks bool
	handler     diag.Handler

	draining bool
	pending  []destroyer
}

// HeapStats describes the cells and memory of a Heap.
type HeapStats struct {
	Live    int
	Slots   int
	Free    int
	Retired int
	Buffer  buffer.Stats
}

var (
	defaultHeap     *Heap
	defaultHeapOnce sync.Once
)

// Default returns the process-wide heap used by New. It is never closed.
func Default() *Heap {
	defaultHeapOnce.Do(func() {
		defaultHeap, _ = NewHeap()
	})
	return defaultHeap
}

// NewHeap returns an empty heap configured by opts.
func NewHeap(opts ...Option) (*Heap, error) {
	h := &Heap{reportLeaks: true}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	h.buf = buffer.NewWithChunkSize(h.chunkSize)
	return h, nil
}

// Live returns the number of cells not yet destroyed.
func (h *Heap) Live() int {
	return h.live
}

// Handler returns the diagnostics handler set with WithHandler. It is nil,
// meaning the global diag handler, when none was set or h is nil.
func (h *Heap) Handler() diag.Handler {
	if h == nil {
		return nil
	}
	return h.handler
}

func (h *Heap) Closed() bool {
	return h.closed
}

func (h *Heap) Stats() HeapStats {
	return HeapStats{
		Live:    h.live,
		Slots:   h.slots,
		Free:    len(h.free),
		Retired: h.retired,
		Buffer:  h.buf.Stats(),
	}
}

// Close releases the heap's off-heap memory. If cells are still alive it
// returns a *LeakError, keeps the memory mapped and leaves the heap usable,
// so a caller that breaks the offending cycle may close it again.
func (h *Heap) Close() error {
	if h.closed {
		return nil
	}
	if h.live > 0 {
		err := &LeakError{Live: h.live}
		if h.reportLeaks {
			diag.ReportTo(h.handler, &diag.Event{
				Op:         "rc.Heap.Close",
				Kind:       diag.KindLeak,
				Err:        err,
				StackTrace: diag.CaptureStack(),
			})
		}
		return err
	}
	h.buf.Free()
	h.free = nil
	h.closed = true
	return nil
}

func (h *Heap) acquire() (*control, uint64) {
	if h.closed {
		panic("rc: allocation in a closed heap")
	}
	var ctl *control
	if n := len(h.free); n > 0 {
		ctl = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		ctl = buffer.Alloc[control](h.buf)
		h.slots++
	}
	ctl.strong = 1
	ctl.live = 1
	h.live++
	return ctl, ctl.gen
}

func (h *Heap) release(ctl *control) {
	ctl.strong = 0
	ctl.live = 0
	h.live--
	if ctl.gen == math.MaxUint64 {
		h.retired++
		return
	}
	ctl.gen++
	h.free = append(h.free, ctl)
}

// schedule queues d for destruction. Destructions triggered while the
// queue drains are appended to it, so cascades run iteratively.
func (h *Heap) schedule(d destroyer) {
	h.pending = append(h.pending, d)
	if h.draining {
		return
	}
	h.draining = true
	defer func() { h.draining = false }()
	for i := 0; i < len(h.pending); i++ {
		next := h.pending[i]
		h.pending[i] = nil
		next.destroy()
	}
	h.pending = h.pending[:0]
}

func (h *Heap) dispose(typ string, d Disposer) {
	op := "rc.Dispose(" + typ + ")"
	defer diag.RecoverTo(h.handler, op)
	if err := d.Dispose(); err != nil {
		diag.ReportTo(h.handler, &diag.Event{Op: op, Kind: diag.KindDispose, Err: err})
	}
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

func (s HeapStats) String() string {
	return fmt.Sprintf("live=%d slots=%d free=%d retired=%d mapped=%d", s.Live, s.Slots, s.Free, s.Retired, s.Buffer.Mapped)
}
