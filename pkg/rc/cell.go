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

package rc

type cell[T any] struct {
	heap  *Heap
	ctl   *control
	gen   uint64
	value T
}

func (c *cell[T]) alive() bool {
	return !c.heap.closed && c.ctl.gen == c.gen && c.ctl.live == 1
}

func (c *cell[T]) count() int {
	if !c.alive() {
		return 0
	}
	return int(c.ctl.strong)
}

func (c *cell[T]) decRef() {
	c.ctl.strong--
	if c.ctl.strong > 0 {
		return
	}
	c.ctl.live = 0
	c.heap.schedule(c)
}

func (c *cell[T]) destroy() {
	h := c.heap
	defer h.release(c.ctl)
	if d, ok := any(&c.value).(Disposer); ok {
		h.dispose(typeName[T](), d)
	} else if d, ok := any(c.value).(Disposer); ok {
		h.dispose(typeName[T](), d)
	}
	var zero T
	c.value = zero
}

func (c *cell[T]) expired() error {
	return &ExpiredError{Type: typeName[T]()}
}

// noCopy makes go vet report copies of a Strong. Copying the struct would
// not increment the count; use Clone.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Strong is an owning handle. While it is held the payload is alive.
// Every Strong must be dropped exactly once, usually with defer.
type Strong[T any] struct {
	_ noCopy
	c *cell[T]
}

// New allocates a cell holding v in the default heap.
func New[T any](v T) *Strong[T] {
	return NewIn(Default(), v)
}

// NewIn allocates a cell holding v in h and returns its first strong
// handle.
func NewIn[T any](h *Heap, v T) *Strong[T] {
	ctl, gen := h.acquire()
	return &Strong[T]{c: &cell[T]{heap: h, ctl: ctl, gen: gen, value: v}}
}

func (s *Strong[T]) must() *cell[T] {
	if s == nil || s.c == nil {
		panic("rc: use of a dropped Strong[" + typeName[T]() + "]")
	}
	return s.c
}

// Get returns the payload. It panics if s was dropped.
func (s *Strong[T]) Get() *T {
	return &s.must().value
}

// Clone returns a new handle to the same cell.
func (s *Strong[T]) Clone() *Strong[T] {
	c := s.must()
	c.ctl.strong++
	return &Strong[T]{c: c}
}

// Drop releases s. The payload is destroyed when the last strong handle
// is dropped. s is cleared, so dropping it again does nothing.
func (s *Strong[T]) Drop() {
	if s == nil || s.c == nil {
		return
	}
	c := s.c
	s.c = nil
	c.decRef()
}

// Valid reports whether s has not been dropped.
func (s *Strong[T]) Valid() bool {
	return s != nil && s.c != nil
}

func (s *Strong[T]) Weak() Weak[T] {
	return Weak[T]{c: s.must()}
}

func (s *Strong[T]) Heap() *Heap {
	return s.must().heap
}

// RefCounter returns an observer of the cell's strong count that stays
// valid after s is dropped.
func (s *Strong[T]) RefCounter() RefCounter {
	return RefCounter{c: s.must()}
}

// Equal reports whether s and o refer to the same cell.
func (s *Strong[T]) Equal(o Ref) bool {
	return Same(s, o)
}

func (s *Strong[T]) identity() any {
	if s == nil || s.c == nil {
		return nil
	}
	return s.c
}

// Weak is a non-owning handle. The zero Weak refers to nothing and
// behaves as expired.
type Weak[T any] struct {
	c *cell[T]
}

func (w Weak[T]) IsZero() bool {
	return w.c == nil
}

// Expired reports whether the payload was destroyed.
func (w Weak[T]) Expired() bool {
	return w.c == nil || !w.c.alive()
}

// Upgrade returns a new strong handle, or false if the cell is expired.
func (w Weak[T]) Upgrade() (*Strong[T], bool) {
	if w.Expired() {
		return nil, false
	}
	w.c.ctl.strong++
	return &Strong[T]{c: w.c}, true
}

// Get returns the payload, or an *ExpiredError. The pointer must not be
// kept past the point where the cell could be destroyed; use With to pin
// the cell for the duration of a call.
func (w Weak[T]) Get() (*T, error) {
	if w.c == nil {
		return nil, &ExpiredError{Type: typeName[T]()}
	}
	if !w.c.alive() {
		return nil, w.c.expired()
	}
	return &w.c.value, nil
}

// With calls fn with the payload while holding a strong handle to it.
func (w Weak[T]) With(fn func(*T) error) error {
	s, ok := w.Upgrade()
	if !ok {
		return &ExpiredError{Type: typeName[T]()}
	}
	defer s.Drop()
	return fn(s.Get())
}

func (w Weak[T]) Heap() *Heap {
	if w.c == nil {
		return nil
	}
	return w.c.heap
}

func (w Weak[T]) RefCounter() RefCounter {
	if w.c == nil {
		return RefCounter{}
	}
	return RefCounter{c: w.c}
}

// Equal reports whether w and o refer to the same cell.
func (w Weak[T]) Equal(o Ref) bool {
	return Same(w, o)
}

func (w Weak[T]) identity() any {
	if w.c == nil {
		return nil
	}
	return w.c
}

// Ref is implemented by *Strong[T] and Weak[T].
type Ref interface {
	identity() any
}

// Same reports whether a and b refer to the same cell, whatever the kind
// of handle and whether or not the cell is still alive. Handles that
// refer to nothing are never the same.
func Same(a, b Ref) bool {
	if a == nil || b == nil {
		return false
	}
	ia := a.identity()
	return ia != nil && ia == b.identity()
}

// RefCounter observes the strong count of a cell without affecting it.
type RefCounter struct {
	c interface{ count() int }
}

// Count returns the number of live strong handles, 0 once destroyed.
func (r RefCounter) Count() int {
	if r.c == nil {
		return 0
	}
	return r.c.count()
}
