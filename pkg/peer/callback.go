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

package peer

import (
	"errors"

	"ownership_experiment/pkg/rc"
)

// ErrReleased is returned when a released callback is invoked.
var ErrReleased = errors.New("peer: callback released")

// Callback is a zero-argument operation together with whatever handles it
// captured. Release gives those handles up; an Object releases its
// callback when the callback is replaced or the object is destroyed.
type Callback interface {
	Invoke() error
	Release()
}

type funcCallback struct {
	fn func() error
}

// Func wraps a closure that captures no handle.
func Func(fn func() error) Callback {
	return &funcCallback{fn: fn}
}

func (c *funcCallback) Invoke() error {
	if c.fn == nil {
		return ErrReleased
	}
	return c.fn()
}

func (c *funcCallback) Release() {
	c.fn = nil
}

type strongCapture[T any] struct {
	s  *rc.Strong[T]
	fn func(*T) error
}

// CaptureStrong returns a callback that keeps its own strong handle to
// s's payload until released. If that payload (directly or not) owns the
// callback, neither is ever destroyed: use CaptureWeak for that direction.
func CaptureStrong[T any](s *rc.Strong[T], fn func(*T) error) Callback {
	return &strongCapture[T]{s: s.Clone(), fn: fn}
}

func (c *strongCapture[T]) Invoke() error {
	if !c.s.Valid() {
		return ErrReleased
	}
	// the callback may be released while it runs
	pin := c.s.Clone()
	defer pin.Drop()
	return c.fn(pin.Get())
}

func (c *strongCapture[T]) Release() {
	c.s.Drop()
}

type weakCapture[T any] struct {
	w        rc.Weak[T]
	fn       func(*T) error
	released bool
}

// CaptureWeak returns a callback that reaches its target through w. Once
// the target is destroyed, Invoke returns an *rc.ExpiredError.
func CaptureWeak[T any](w rc.Weak[T], fn func(*T) error) Callback {
	return &weakCapture[T]{w: w, fn: fn}
}

func (c *weakCapture[T]) Invoke() error {
	if c.released {
		return ErrReleased
	}
	return c.w.With(c.fn)
}

func (c *weakCapture[T]) Release() {
	c.released = true
	c.w = rc.Weak[T]{}
}
