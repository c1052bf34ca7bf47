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

// Package peer implements objects that reference each other, directly or
// through the handles captured by their callbacks.
//
// Every link is explicitly strong or weak. Two objects that strongly
// reference each other, for instance a widget holding an action whose
// callback captures the widget, are never destroyed. The canonical fix is
// to make the back direction weak: the callback captures the widget with
// CaptureWeak.
package peer

import (
	"errors"

	"ownership_experiment/pkg/diag"
	"ownership_experiment/pkg/rc"
)

var (
	// ErrNoCallback is returned by ExecuteCallback when no callback is set.
	ErrNoCallback = errors.New("peer: no callback set")
	// ErrNoPeer is returned by Peer when no peer is set.
	ErrNoPeer = errors.New("peer: no peer set")
)

// LinkKind tells how an Object holds its peer.
type LinkKind int

const (
	LinkNone LinkKind = iota
	LinkStrong
	LinkWeak
)

func (k LinkKind) String() string {
	switch k {
	case LinkStrong:
		return "strong"
	case LinkWeak:
		return "weak"
	default:
		return "none"
	}
}

// Object is the payload of a peer cell.
type Object struct {
	self     rc.Weak[Object]
	name     string
	kind     LinkKind
	strong   *rc.Strong[Object]
	weak     rc.Weak[Object]
	callback Callback
}

// New creates an unnamed object in the default heap.
func New() *rc.Strong[Object] {
	return NewIn(rc.Default())
}

func NewIn(h *rc.Heap) *rc.Strong[Object] {
	s := rc.NewIn(h, Object{})
	s.Get().self = s.Weak()
	return s
}

func (o *Object) Name() string {
	return o.name
}

func (o *Object) SetName(name string) {
	o.name = name
}

// Self returns a weak handle to o.
func (o *Object) Self() rc.Weak[Object] {
	return o.self
}

// Shared returns a new strong handle to o. It fails once o is being
// destroyed.
func (o *Object) Shared() (*rc.Strong[Object], error) {
	s, ok := o.self.Upgrade()
	if !ok {
		_, err := o.self.Get()
		return nil, err
	}
	return s, nil
}

// SetCallback replaces the callback and releases the previous one. A nil
// cb removes the callback.
func (o *Object) SetCallback(cb Callback) {
	old := o.callback
	o.callback = cb
	if old != nil {
		old.Release()
	}
}

// ExecuteCallback runs the callback synchronously. It returns
// ErrNoCallback if none is set. A panic in the callback is reported to
// the handler of o's heap and returned as a *diag.PanicError.
func (o *Object) ExecuteCallback() (err error) {
	cb := o.callback
	if cb == nil {
		return ErrNoCallback
	}
	if self, ok := o.self.Upgrade(); ok {
		defer self.Drop()
	}
	defer func() {
		if r := recover(); r != nil {
			perr := &diag.PanicError{
				Op:         "peer.ExecuteCallback",
				Value:      r,
				StackTrace: diag.CaptureStack(),
			}
			diag.ReportPanicTo(o.self.Heap().Handler(), perr)
			err = perr
		}
	}()
	return cb.Invoke()
}

// SetPeer makes o own a strong handle to p's object.
func (o *Object) SetPeer(p *rc.Strong[Object]) {
	o.setLink(LinkStrong, p.Clone(), rc.Weak[Object]{})
}

// SetPeerWeak makes o refer to w's object without keeping it alive.
func (o *Object) SetPeerWeak(w rc.Weak[Object]) {
	if w.IsZero() {
		o.ClearPeer()
		return
	}
	o.setLink(LinkWeak, nil, w)
}

func (o *Object) ClearPeer() {
	o.setLink(LinkNone, nil, rc.Weak[Object]{})
}

func (o *Object) setLink(kind LinkKind, s *rc.Strong[Object], w rc.Weak[Object]) {
	old := o.strong
	o.kind, o.strong, o.weak = kind, s, w
	old.Drop()
}

func (o *Object) PeerKind() LinkKind {
	return o.kind
}

// Peer returns a weak handle to the peer without changing its count. It
// fails with ErrNoPeer when unset and with an *rc.ExpiredError when a
// weakly held peer is gone.
func (o *Object) Peer() (rc.Weak[Object], error) {
	switch o.kind {
	case LinkStrong:
		return o.strong.Weak(), nil
	case LinkWeak:
		if _, err := o.weak.Get(); err != nil {
			return rc.Weak[Object]{}, err
		}
		return o.weak, nil
	default:
		return rc.Weak[Object]{}, ErrNoPeer
	}
}

// TriggerPeer runs the peer's callback.
func (o *Object) TriggerPeer() error {
	w, err := o.Peer()
	if err != nil {
		return err
	}
	return w.With(func(p *Object) error {
		return p.ExecuteCallback()
	})
}

// Dispose releases the callback and the peer.
func (o *Object) Dispose() error {
	o.SetCallback(nil)
	o.ClearPeer()
	return nil
}
