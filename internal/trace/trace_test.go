package trace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/specifier"
)

func TestRecorder_AssignsIncreasingSeq(t *testing.T) {
	r := NewRecorder()
	s := specifier.MustParse("mem:///a.yaml")

	e1 := r.Record(KindStep, "one", s, "")
	e2 := r.Record(KindStep, "two", s, "x")

	assert.Equal(t, int64(1), e1.Seq)
	assert.Equal(t, int64(2), e2.Seq)
	assert.Equal(t, "mem:///a.yaml", e2.Specifier)
	assert.Equal(t, 2, r.Len())
}

func TestRecorder_NamesByKind(t *testing.T) {
	r := NewRecorder()
	s := specifier.MustParse("mem:///a.yaml")

	r.TaskStarted(loop.KindMicrotask, s, "m1", 1)
	r.TaskStarted(loop.KindMacrotask, s, "t1", 2)
	r.StateChanged(loop.StateIdle, loop.StateDraining)
	r.Step(s, "log", "hello")
	r.Error(s, errors.New("boom"))

	assert.Equal(t, []string{"m1", "t1"}, r.Names(KindMicrotask, KindMacrotask))
	assert.Equal(t, []string{"draining"}, r.Names(KindLoopState))
	assert.Equal(t, []string{"m1", "t1", "draining", "log", "error"}, r.Names())

	errs := r.Filter(func(e Event) bool { return e.Kind == KindError })
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].Detail)
}

func TestRecorder_EventsIsCopy(t *testing.T) {
	r := NewRecorder()
	r.ModuleState(specifier.MustParse("mem:///a.yaml"), "evaluated")

	events := r.Events()
	events[0].Name = "mutated"
	assert.Equal(t, "evaluated", r.Events()[0].Name)
}
