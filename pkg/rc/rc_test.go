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

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ownership_experiment/pkg/config"
	"ownership_experiment/pkg/diag"
)

// newHeap returns a heap that must be empty when the test ends.
func newHeap(t *testing.T, opts ...Option) *Heap {
	t.Helper()
	h, err := NewHeap(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, h.Close())
	})
	return h
}

type widget struct {
	name     string
	disposed *int
	next     *Strong[widget]
}

func (w *widget) Dispose() error {
	if w.disposed != nil {
		*w.disposed++
	}
	w.next.Drop()
	return nil
}

type failing struct {
	err   error
	panic any
}

func (f failing) Dispose() error {
	if f.panic != nil {
		panic(f.panic)
	}
	return f.err
}

func Example() {
	h, _ := NewHeap()
	defer h.Close()

	s := NewIn(h, "payload")
	w := s.Weak()
	fmt.Println(s.RefCounter().Count(), *s.Get())

	s.Drop()
	_, err := w.Get()
	fmt.Println(w.RefCounter().Count(), errors.Is(err, ErrExpired))
	// Output:
	// 1 payload
	// 0 true
}

func TestCreate(t *testing.T) {
	h := newHeap(t)

	s := NewIn(h, widget{name: "w"})
	defer s.Drop()

	assert.Equal(t, 1, s.RefCounter().Count())
	assert.Equal(t, "w", s.Get().name)
	assert.Equal(t, 1, h.Live())
	assert.Same(t, h, s.Heap())
}

func TestCountMatchesLiveHandles(t *testing.T) {
	h := newHeap(t)
	rng := rand.New(rand.NewSource(1))

	handles := []*Strong[int]{NewIn(h, 42)}
	counter := handles[0].RefCounter()
	for i := 0; i < 1000 && len(handles) > 0; i++ {
		if rng.Intn(2) == 0 {
			handles = append(handles, handles[rng.Intn(len(handles))].Clone())
		} else {
			j := rng.Intn(len(handles))
			handles[j].Drop()
			handles = append(handles[:j], handles[j+1:]...)
		}
		require.Equal(t, len(handles), counter.Count())
	}
	for _, s := range handles {
		s.Drop()
	}
	assert.Equal(t, 0, counter.Count())
	assert.Equal(t, 0, h.Live())
}

func TestDropDestroysExactlyOnce(t *testing.T) {
	h := newHeap(t)
	disposed := 0

	s := NewIn(h, widget{disposed: &disposed})
	s2 := s.Clone()
	w := s.Weak()

	s.Drop()
	assert.Equal(t, 0, disposed)
	assert.False(t, w.Expired())

	s2.Drop()
	assert.Equal(t, 1, disposed)
	assert.True(t, w.Expired())

	s.Drop()
	s2.Drop()
	assert.Equal(t, 1, disposed)
	assert.Equal(t, 0, w.RefCounter().Count())
}

func TestWeakAccessAfterDestroy(t *testing.T) {
	h := newHeap(t)

	s := NewIn(h, widget{name: "w"})
	w := s.Weak()

	p, err := w.Get()
	require.NoError(t, err)
	assert.Equal(t, "w", p.name)

	s.Drop()
	p, err = w.Get()
	assert.Nil(t, p)
	require.ErrorIs(t, err, ErrExpired)

	var expired *ExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, "rc.widget", expired.Type)
}

func TestZeroWeak(t *testing.T) {
	var w Weak[widget]

	assert.True(t, w.IsZero())
	assert.True(t, w.Expired())
	assert.Nil(t, w.Heap())
	assert.Equal(t, 0, w.RefCounter().Count())

	_, ok := w.Upgrade()
	assert.False(t, ok)
	_, err := w.Get()
	assert.ErrorIs(t, err, ErrExpired)
	assert.ErrorIs(t, w.With(func(*widget) error { return nil }), ErrExpired)
}

func TestUpgrade(t *testing.T) {
	h := newHeap(t)

	s := NewIn(h, 1)
	w := s.Weak()
	assert.Equal(t, 1, w.RefCounter().Count())

	s2, ok := w.Upgrade()
	require.True(t, ok)
	assert.Equal(t, 2, s.RefCounter().Count())
	assert.True(t, s2.Equal(s))
	s2.Drop()

	s.Drop()
	s3, ok := w.Upgrade()
	assert.False(t, ok)
	assert.Nil(t, s3)
}

func TestRoundTripKeepsIdentity(t *testing.T) {
	h := newHeap(t)

	x := NewIn(h, "x")
	defer x.Drop()

	y, ok := x.Weak().Upgrade()
	require.True(t, ok)
	defer y.Drop()

	assert.True(t, Same(x, y))
	assert.True(t, Same(y.Weak(), x))
	assert.False(t, x.Weak().Expired())
}

func TestEquality(t *testing.T) {
	h := newHeap(t)

	a := NewIn(h, "a")
	defer a.Drop()
	b := NewIn(h, "a")
	defer b.Drop()
	other := NewIn(h, 1)
	defer other.Drop()

	aw, aw2 := a.Weak(), a.Weak()
	assert.True(t, a.Equal(aw))
	assert.True(t, aw.Equal(a))
	assert.True(t, aw.Equal(aw2))
	assert.True(t, aw == aw2)

	assert.False(t, a.Equal(b))
	assert.False(t, aw.Equal(b.Weak()))
	assert.False(t, Same(a, other))

	var zero Weak[string]
	assert.False(t, Same(zero, zero))
	assert.False(t, Same(a, nil))
	assert.False(t, Same(nil, aw))
}

func TestEqualityOutlivesCell(t *testing.T) {
	h := newHeap(t)

	s := NewIn(h, "gone")
	w1, w2 := s.Weak(), s.Weak()
	s.Drop()

	assert.True(t, w1.Equal(w2))
}

func TestRecycledSlotStaysExpired(t *testing.T) {
	h := newHeap(t)

	a := NewIn(h, "a")
	wa := a.Weak()
	a.Drop()

	b := NewIn(h, "b")
	defer b.Drop()

	st := h.Stats()
	assert.Equal(t, 1, st.Slots)
	assert.Equal(t, 0, st.Free)

	// same control block, new generation
	assert.True(t, wa.Expired())
	assert.False(t, wa.Equal(b))
	assert.Equal(t, 0, wa.RefCounter().Count())
	_, ok := wa.Upgrade()
	assert.False(t, ok)
}

func TestExhaustedSlotIsRetired(t *testing.T) {
	h := newHeap(t)

	a := NewIn(h, "a")
	wa := a.Weak()
	ctl := a.c.ctl
	a.Drop()

	// pretend the slot was recycled until its generation ran out
	ctl.gen = math.MaxUint64
	x := NewIn(h, "x")
	require.Same(t, ctl, x.c.ctl)
	wx := x.Weak()
	x.Drop()

	st := h.Stats()
	assert.Equal(t, 0, st.Free)
	assert.Equal(t, 1, st.Retired)

	c := NewIn(h, "c")
	defer c.Drop()
	assert.NotSame(t, ctl, c.c.ctl)
	assert.Equal(t, 2, h.Stats().Slots)

	for _, w := range []Weak[string]{wa, wx} {
		assert.True(t, w.Expired())
		assert.Equal(t, 0, w.RefCounter().Count())
		_, err := w.Get()
		assert.ErrorIs(t, err, ErrExpired)
		_, ok := w.Upgrade()
		assert.False(t, ok)
	}
	assert.Equal(t, 1, c.RefCounter().Count())
}

func TestCascadeRunsIteratively(t *testing.T) {
	h := newHeap(t)
	disposed := 0

	const n = 10000
	head := NewIn(h, widget{disposed: &disposed})
	cur := head.Clone()
	for i := 1; i < n; i++ {
		next := NewIn(h, widget{disposed: &disposed})
		cur.Get().next = next.Clone()
		cur.Drop()
		cur = next
	}
	cur.Drop()
	require.Equal(t, n, h.Live())

	head.Drop()
	assert.Equal(t, n, disposed)
	assert.Equal(t, 0, h.Live())
	assert.Equal(t, n, h.Stats().Free)
}

func TestWeakExpiredDuringDispose(t *testing.T) {
	h := newHeap(t)

	var self Weak[*selfWatcher]
	p := &selfWatcher{}
	s := NewIn(h, p)
	self = s.Weak()
	p.check = func() { p.sawExpired = self.Expired() }

	s.Drop()
	assert.True(t, p.sawExpired)
}

type selfWatcher struct {
	check      func()
	sawExpired bool
}

func (p *selfWatcher) Dispose() error {
	p.check()
	return nil
}

func TestDisposeErrorIsReported(t *testing.T) {
	rec := &diag.Recorder{}
	h := newHeap(t, WithHandler(rec))

	NewIn(h, failing{err: errors.New("close failed")}).Drop()

	require.Len(t, rec.Events, 1)
	assert.Equal(t, diag.KindDispose, rec.Events[0].Kind)
	assert.Equal(t, "rc.Dispose(rc.failing)", rec.Events[0].Op)
	assert.EqualError(t, rec.Events[0].Err, "close failed")
	assert.Equal(t, 0, h.Live())
}

func TestDisposePanicIsRecovered(t *testing.T) {
	rec := &diag.Recorder{}
	h := newHeap(t, WithHandler(rec))
	disposed := 0

	a := NewIn(h, failing{panic: "boom"})
	b := NewIn(h, widget{disposed: &disposed})

	require.NotPanics(t, a.Drop)
	b.Drop()

	require.Len(t, rec.Panics, 1)
	assert.Equal(t, "boom", rec.Panics[0].Value)
	assert.Equal(t, 1, disposed)
	assert.Equal(t, 0, h.Live())
}

func TestDroppedStrongPanics(t *testing.T) {
	h := newHeap(t)

	s := NewIn(h, 1)
	s.Drop()

	assert.False(t, s.Valid())
	assert.Panics(t, func() { s.Get() })
	assert.Panics(t, func() { s.Clone() })
	assert.Panics(t, func() { s.Weak() })
	assert.NotPanics(t, s.Drop)

	var nilStrong *Strong[int]
	assert.False(t, nilStrong.Valid())
	assert.NotPanics(t, nilStrong.Drop)
}

func TestDropRunsOnEveryExitPath(t *testing.T) {
	h := newHeap(t)

	s := NewIn(h, 0)
	defer s.Drop()
	counter := s.RefCounter()

	errEarly := errors.New("early")
	early := func() error {
		c := s.Clone()
		defer c.Drop()
		if counter.Count() == 2 {
			return errEarly
		}
		return nil
	}
	require.ErrorIs(t, early(), errEarly)
	assert.Equal(t, 1, counter.Count())

	func() {
		defer func() { _ = recover() }()
		c := s.Clone()
		defer c.Drop()
		panic("unwind")
	}()
	assert.Equal(t, 1, counter.Count())
}

func TestWithPinsPayload(t *testing.T) {
	h := newHeap(t)
	disposed := 0

	s := NewIn(h, widget{name: "pinned", disposed: &disposed})
	w := s.Weak()

	err := w.With(func(p *widget) error {
		s.Drop()
		assert.Equal(t, 0, disposed)
		assert.Equal(t, "pinned", p.name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, disposed)
	assert.True(t, w.Expired())
}

func TestCloseReportsLeaks(t *testing.T) {
	rec := &diag.Recorder{}
	h, err := NewHeap(WithHandler(rec))
	require.NoError(t, err)

	s := NewIn(h, 1)
	w := s.Weak()

	err = h.Close()
	var leak *LeakError
	require.ErrorAs(t, err, &leak)
	assert.Equal(t, 1, leak.Live)
	assert.Equal(t, []diag.Kind{diag.KindLeak}, rec.Kinds())
	assert.NotEmpty(t, rec.Events[0].StackTrace)
	assert.False(t, h.Closed())
	assert.False(t, w.Expired())

	s.Drop()
	require.NoError(t, h.Close())
	assert.True(t, h.Closed())
	assert.True(t, w.Expired())
	require.NoError(t, h.Close())

	assert.Panics(t, func() { NewIn(h, 2) })
}

func TestCloseLeakReportingCanBeDisabled(t *testing.T) {
	rec := &diag.Recorder{}
	h, err := NewHeap(WithHandler(rec), WithConfig(config.Heap{ReportLeaks: false}))
	require.NoError(t, err)

	s := NewIn(h, 1)
	require.Error(t, h.Close())
	assert.Empty(t, rec.Events)

	s.Drop()
	require.NoError(t, h.Close())
}

func TestHeapOptions(t *testing.T) {
	_, err := NewHeap(WithChunkSize(-1))
	require.Error(t, err)

	_, err = NewHeap(WithConfig(config.Heap{ChunkSize: -5}))
	require.Error(t, err)

	h := newHeap(t, WithConfig(config.Heap{ChunkSize: 1 << 16, ReportLeaks: true}))
	s := NewIn(h, 1)
	defer s.Drop()
	assert.Equal(t, 1<<16, h.Stats().Buffer.Mapped)
}

func TestDefaultHeap(t *testing.T) {
	before := Default().Live()

	s := New("default")
	assert.Same(t, Default(), s.Heap())
	assert.Equal(t, before+1, Default().Live())

	s.Drop()
	assert.Equal(t, before, Default().Live())
}

func TestScope(t *testing.T) {
	h := newHeap(t)
	var order []string

	a := NewIn(h, &tracer{name: "a", order: &order})
	b := NewIn(h, &tracer{name: "b", order: &order})

	func() {
		sc := &Scope{}
		defer sc.Close()
		Hold(sc, a)
		Hold(sc, b)
		assert.Equal(t, 2, sc.Len())
	}()

	assert.Equal(t, []string{"b", "a"}, order)
	assert.Equal(t, 0, h.Live())
}

type tracer struct {
	name  string
	order *[]string
}

func (tr *tracer) Dispose() error {
	*tr.order = append(*tr.order, tr.name)
	return nil
}
