package loop

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/value"
)

// Observer receives every task execution and state transition. It is
// called on the loop goroutine.
type Observer interface {
	TaskStarted(kind TaskKind, owner specifier.Specifier, name string, seq int64)
	StateChanged(from, to State)
}

type task struct {
	kind    TaskKind
	owner   specifier.Specifier
	name    string
	seq     int64
	fn      func() error
	release bool
}

// Loop is a single-run cooperative event loop.
//
// Thread-safety model:
//   - Run and every scheduling method: loop goroutine only
//   - PendingOp.Complete: safe from any goroutine
type Loop struct {
	clock    *Clock
	time     TimeSource
	logger   *slog.Logger
	observer Observer

	state     State
	micro     []task
	microHead int
	timers    timerHeap
	timerByID map[TimerID]*timer
	ingress   *ingressQueue

	// holds counts outstanding external operations whose completion has not
	// yet been run.
	holds int

	promises   []*Promise
	rejections []*Promise
}

// Option configures a Loop.
type Option func(*Loop)

// WithTimeSource sets the time source (default: SystemTime).
func WithTimeSource(ts TimeSource) Option {
	return func(l *Loop) {
		l.time = ts
	}
}

// WithObserver sets the task/state observer.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		l.observer = o
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates an idle loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		clock:     NewClock(),
		time:      SystemTime{},
		logger:    slog.Default(),
		state:     StateIdle,
		timerByID: make(map[TimerID]*timer),
		ingress:   newIngressQueue(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current state.
func (l *Loop) State() State { return l.state }

// Clock returns the loop's logical clock.
func (l *Loop) Clock() *Clock { return l.clock }

// Now returns the loop's current time.
func (l *Loop) Now() time.Time { return l.time.Now() }

// QueueMicrotask appends fn to the microtask queue. Ignored after the loop
// has terminated.
func (l *Loop) QueueMicrotask(owner specifier.Specifier, name string, fn func() error) {
	if l.state == StateTerminated {
		return
	}
	l.micro = append(l.micro, task{
		kind:  KindMicrotask,
		owner: owner,
		name:  name,
		seq:   l.clock.Next(),
		fn:    fn,
	})
}

// SetTimeout schedules fn as a macrotask after delay. Negative delays are
// treated as zero.
func (l *Loop) SetTimeout(owner specifier.Specifier, name string, delay time.Duration, fn func() error) TimerID {
	if delay < 0 {
		delay = 0
	}
	seq := l.clock.Next()
	t := &timer{
		id:       TimerID(seq),
		deadline: l.time.Now().Add(delay),
		seq:      seq,
		task:     task{kind: KindMacrotask, owner: owner, name: name, seq: seq, fn: fn},
	}
	if l.state == StateTerminated {
		return t.id
	}
	heap.Push(&l.timers, t)
	l.timerByID[t.id] = t
	return t.id
}

// ClearTimeout cancels a timer that has not fired yet.
func (l *Loop) ClearTimeout(id TimerID) bool {
	t, ok := l.timerByID[id]
	if !ok {
		return false
	}
	delete(l.timerByID, id)
	heap.Remove(&l.timers, t.index)
	return true
}

// NewPromise creates a pending promise attributed to owner.
func (l *Loop) NewPromise(owner specifier.Specifier, name string) *Promise {
	p := &Promise{loop: l, owner: owner, name: name}
	l.promises = append(l.promises, p)
	return p
}

// PendingOp is an outstanding external operation. While it is open the loop
// treats a macrotask as pending and suspends instead of reporting a stall.
type PendingOp struct {
	loop  *Loop
	owner specifier.Specifier
	name  string
	once  sync.Once
}

// Hold registers an external operation that will post its completion
// through PendingOp.Complete.
func (l *Loop) Hold(owner specifier.Specifier, name string) *PendingOp {
	l.holds++
	return &PendingOp{loop: l, owner: owner, name: name}
}

// Complete posts fn as the operation's completion macrotask. Safe to call
// from any goroutine; only the first call has an effect.
func (p *PendingOp) Complete(fn func() error) {
	p.once.Do(func() {
		p.loop.ingress.Enqueue(task{
			kind:    KindMacrotask,
			owner:   p.owner,
			name:    p.name,
			fn:      fn,
			release: true,
		})
	})
}

// StartIO runs work on its own goroutine and returns a promise settled
// with its result by an I/O completion macrotask.
func (l *Loop) StartIO(ctx context.Context, owner specifier.Specifier, name string, work func(ctx context.Context) (value.Value, error)) *Promise {
	p := l.NewPromise(owner, name)
	hold := l.Hold(owner, name)
	go func() {
		v, err := work(ctx)
		hold.Complete(func() error {
			if err != nil {
				p.Reject(err)
			} else {
				p.Resolve(v)
			}
			return nil
		})
	}()
	return p
}

// Run drives the loop until c settles and no work remains.
//
// Each iteration drains the microtask queue, checks for termination, then
// runs at most one macrotask. Due timers run before posted completions.
// When nothing is ready the loop suspends until a timer deadline, a posted
// completion, or ctx cancellation.
func (l *Loop) Run(ctx context.Context, c *Completion) (value.Value, error) {
	if l.state == StateTerminated {
		return nil, ErrTerminated
	}
	defer func() {
		l.ingress.Close()
		l.setState(StateTerminated)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return l.cancel(c, err)
		}

		l.setState(StateDraining)
		if err := l.drain(ctx); err != nil {
			if ctx.Err() != nil {
				return l.cancel(c, ctx.Err())
			}
			return l.fail(c, err)
		}
		l.setState(StateIdle)

		if c.Settled() {
			if _, err := c.Result(); err != nil {
				return nil, err
			}
			if !l.hasMacrotasks() {
				return l.finish(c)
			}
		}

		if t, ok := l.nextMacrotask(); ok {
			if err := l.execute(t); err != nil {
				return l.fail(c, err)
			}
			continue
		}

		if !l.hasMacrotasks() {
			return l.stall(c)
		}

		l.setState(StateAwaitingMacrotask)
		if err := l.wait(ctx); err != nil {
			return l.cancel(c, err)
		}
	}
}

func (l *Loop) drain(ctx context.Context) error {
	for l.microHead < len(l.micro) {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := l.micro[l.microHead]
		l.micro[l.microHead] = task{}
		l.microHead++
		if err := l.execute(t); err != nil {
			return err
		}
	}
	l.micro = l.micro[:0]
	l.microHead = 0
	return nil
}

func (l *Loop) hasMacrotasks() bool {
	return l.timers.Len() > 0 || l.holds > 0 || l.ingress.Len() > 0
}

func (l *Loop) nextMacrotask() (task, bool) {
	if t, ok := l.timers.popDue(l.time.Now()); ok {
		delete(l.timerByID, t.id)
		return t.task, true
	}
	if t, ok := l.ingress.TryDequeue(); ok {
		if t.release {
			l.holds--
		}
		t.seq = l.clock.Next()
		return t, true
	}
	return task{}, false
}

func (l *Loop) wait(ctx context.Context) error {
	var timerC <-chan time.Time
	if next, ok := l.timers.peek(); ok {
		if l.holds == 0 && l.ingress.Len() == 0 && l.time.AdvanceTo(next.deadline) {
			return nil
		}
		d := next.deadline.Sub(l.time.Now())
		if d <= 0 {
			return nil
		}
		tm := time.NewTimer(d)
		defer tm.Stop()
		timerC = tm.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ingress.Wait():
	case <-timerC:
	}
	return nil
}

// execute runs one task, converting errors and panics into *TaskError.
func (l *Loop) execute(t task) (err error) {
	if l.observer != nil {
		l.observer.TaskStarted(t.kind, t.owner, t.name, t.seq)
	}
	l.logger.Debug("running task",
		"kind", t.kind,
		"name", t.name,
		"specifier", t.owner.String(),
		"seq", t.seq,
	)

	defer func() {
		if r := recover(); r != nil {
			err = &TaskError{Owner: t.owner, Kind: t.kind, Name: t.name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	if t.fn == nil {
		return nil
	}
	if cause := t.fn(); cause != nil {
		return &TaskError{Owner: t.owner, Kind: t.kind, Name: t.name, Cause: cause}
	}
	return nil
}

func (l *Loop) finish(c *Completion) (value.Value, error) {
	v, _ := c.Result()
	for _, p := range l.rejections {
		if !p.handled {
			return v, &UnhandledRejectionError{Owner: p.owner, Reason: p.err}
		}
	}
	l.logger.Debug("event loop finished", "specifier", c.Owner().String())
	return v, nil
}

func (l *Loop) fail(c *Completion, err error) (value.Value, error) {
	c.Reject(err)
	l.logger.Debug("event loop failed", "specifier", c.Owner().String(), "error", err)
	return nil, err
}

func (l *Loop) stall(c *Completion) (value.Value, error) {
	unsettled := 0
	for _, p := range l.promises {
		if !p.Settled() {
			unsettled++
		}
	}
	err := &StalledError{Entry: c.Owner(), Unsettled: unsettled}
	c.Reject(err)
	l.logger.Debug("event loop stalled", "specifier", c.Owner().String(), "pending_promises", unsettled)
	return nil, err
}

// cancel rejects every unsettled promise and the completion. Reactions are
// not run: the loop is terminating.
func (l *Loop) cancel(c *Completion, cause error) (value.Value, error) {
	err := &CancelledError{Cause: cause}
	for _, p := range l.promises {
		if !p.Settled() {
			p.state, p.err, p.reactions = Rejected, err, nil
		}
	}
	if !c.Reject(err) {
		if _, prev := c.Result(); prev != nil {
			return nil, prev
		}
	}
	l.logger.Debug("event loop cancelled", "specifier", c.Owner().String(), "error", cause)
	return nil, err
}

func (l *Loop) trackRejection(p *Promise) {
	if l.state == StateTerminated {
		return
	}
	l.rejections = append(l.rejections, p)
}

func (l *Loop) setState(s State) {
	if l.state == s {
		return
	}
	from := l.state
	l.state = s
	if l.observer != nil {
		l.observer.StateChanged(from, s)
	}
}
