package host

import (
	"errors"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/linker"
	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/value"
)

// Driver evaluates linked modules in dependency order.
//
// Modules are evaluated in linker.Order. A module whose body returns a
// promise suspends the walk until that promise settles; the next module
// starts from the promise's reaction. Already evaluated modules are
// skipped, so every module body runs at most once per run. The first
// failure stops the walk.
type Driver struct{}

// Evaluate schedules evaluation of the subgraph under root and returns
// its completion handle at once. The handle resolves to root's namespace.
func (d *Driver) Evaluate(rc *RunContext, root specifier.Specifier) *loop.Completion {
	c := loop.NewCompletion(root)
	rc.Loop.QueueMicrotask(root, "evaluate", func() error {
		d.run(rc, root, func(err error) {
			if err != nil {
				c.Reject(err)
				return
			}
			r, _ := rc.Graph.Get(root)
			ns, err := rc.Engine.Namespace(r.Handle)
			if err != nil {
				c.Reject(err)
				return
			}
			c.Resolve(ns)
		})
		return nil
	})
	return c
}

func (d *Driver) run(rc *RunContext, root specifier.Specifier, done func(error)) {
	d.step(rc, linker.Order(rc.Graph, root), 0, done)
}

func (d *Driver) step(rc *RunContext, order []specifier.Specifier, i int, done func(error)) {
	for ; i < len(order); i++ {
		s := order[i]
		r, _ := rc.Graph.Get(s)

		switch r.State {
		case graph.Evaluated:
			continue
		case graph.Errored:
			done(r.Err)
			return
		case graph.Evaluating:
			// Started by another walk (a concurrent dynamic import):
			// continue once it settles.
			p, ok := rc.evaluating[s]
			if !ok {
				continue
			}
			next := i + 1
			p.Then(func(value.Value, error) error {
				if r.State == graph.Errored {
					done(r.Err)
					return nil
				}
				d.step(rc, order, next, done)
				return nil
			})
			return
		}

		rc.Graph.SetState(s, graph.Evaluating)
		p, err := rc.Engine.Evaluate(rc.ctx, r.Handle, rc.Runtime(s))
		if err != nil {
			done(d.fail(rc, s, err))
			return
		}
		if p == nil {
			rc.Graph.SetState(s, graph.Evaluated)
			continue
		}

		rc.evaluating[s] = p
		next := i + 1
		p.Then(func(_ value.Value, err error) error {
			delete(rc.evaluating, s)
			if err != nil {
				done(d.fail(rc, s, err))
				return nil
			}
			if r.State == graph.Evaluating {
				rc.Graph.SetState(s, graph.Evaluated)
			}
			d.step(rc, order, next, done)
			return nil
		})
		return
	}
	done(nil)
}

// fail records an evaluation failure of s and gives every transitive
// dependent that has not finished evaluating the same error. Evaluated
// modules keep their state.
func (d *Driver) fail(rc *RunContext, s specifier.Specifier, cause error) error {
	var ee *EvaluationError
	if !errors.As(cause, &ee) {
		ee = &EvaluationError{Specifier: s, Cause: cause}
	}
	rc.Recorder.Error(s, ee)
	rc.Logger.Debug("module evaluation failed", "specifier", s.String(), "error", ee)

	queue := []specifier.Specifier{s}
	seen := map[specifier.Specifier]bool{s: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if r, ok := rc.Graph.Get(cur); ok && r.State != graph.Evaluated && r.State != graph.Errored {
			rc.Graph.Fail(cur, ee)
		}
		for _, dep := range rc.Graph.Dependents(cur) {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return ee
}
