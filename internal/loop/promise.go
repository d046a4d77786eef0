package loop

import (
	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/value"
)

// PromiseState is the settlement state of a Promise.
type PromiseState int

const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
)

// String returns the state name.
func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Reaction observes a settled promise. Exactly one of v or err is set.
type Reaction func(v value.Value, err error) error

// Promise is a settle-once value owned by a loop.
//
// Reactions registered with Then run as microtasks in registration order.
// A promise must only be settled or observed from the loop goroutine.
type Promise struct {
	loop  *Loop
	owner specifier.Specifier
	name  string

	state     PromiseState
	value     value.Value
	err       error
	reactions []Reaction
	handled   bool
}

// Owner returns the specifier the promise is attributed to.
func (p *Promise) Owner() specifier.Specifier { return p.owner }

// Name returns the promise's label.
func (p *Promise) Name() string { return p.name }

// State returns the current settlement state.
func (p *Promise) State() PromiseState { return p.state }

// Settled reports whether the promise is fulfilled or rejected.
func (p *Promise) Settled() bool { return p.state != Pending }

// Result returns the settled value or error. Both are nil while pending.
func (p *Promise) Result() (value.Value, error) { return p.value, p.err }

// Resolve fulfills the promise. Returns false if it was already settled.
func (p *Promise) Resolve(v value.Value) bool {
	if v == nil {
		v = value.Null{}
	}
	return p.settle(Fulfilled, v, nil)
}

// Reject rejects the promise. Returns false if it was already settled.
func (p *Promise) Reject(err error) bool {
	return p.settle(Rejected, nil, err)
}

// Follow settles p with the outcome of other once other settles.
func (p *Promise) Follow(other *Promise) {
	other.Then(func(v value.Value, err error) error {
		if err != nil {
			p.Reject(err)
		} else {
			p.Resolve(v)
		}
		return nil
	})
}

// Then registers a reaction. If the promise is already settled the
// reaction is queued immediately. Registering a reaction marks a rejection
// as handled.
func (p *Promise) Then(r Reaction) {
	p.handled = true
	if p.state == Pending {
		p.reactions = append(p.reactions, r)
		return
	}
	p.schedule(r)
}

func (p *Promise) settle(state PromiseState, v value.Value, err error) bool {
	if p.state != Pending {
		return false
	}
	p.state = state
	p.value = v
	p.err = err

	reactions := p.reactions
	p.reactions = nil
	for _, r := range reactions {
		p.schedule(r)
	}
	if state == Rejected && !p.handled {
		p.loop.trackRejection(p)
	}
	return true
}

func (p *Promise) schedule(r Reaction) {
	v, err := p.value, p.err
	p.loop.QueueMicrotask(p.owner, p.name+".then", func() error {
		return r(v, err)
	})
}

// Completion is the handle for the eventual outcome of a run. It settles
// exactly once, and Run terminates based on it.
type Completion struct {
	owner   specifier.Specifier
	settled bool
	value   value.Value
	err     error
}

// NewCompletion creates an unsettled completion attributed to owner.
func NewCompletion(owner specifier.Specifier) *Completion {
	return &Completion{owner: owner}
}

// Owner returns the specifier the completion belongs to.
func (c *Completion) Owner() specifier.Specifier { return c.owner }

// Settled reports whether the completion has an outcome.
func (c *Completion) Settled() bool { return c.settled }

// Result returns the outcome. Both are nil while unsettled.
func (c *Completion) Result() (value.Value, error) { return c.value, c.err }

// Resolve settles the completion successfully. Returns false if it was
// already settled.
func (c *Completion) Resolve(v value.Value) bool {
	if c.settled {
		return false
	}
	if v == nil {
		v = value.Null{}
	}
	c.settled, c.value = true, v
	return true
}

// Reject settles the completion with an error. Returns false if it was
// already settled.
func (c *Completion) Reject(err error) bool {
	if c.settled {
		return false
	}
	c.settled, c.err = true, err
	return true
}
