package modscript

import (
	"context"
	"time"

	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/value"
)

// evaluation runs one module body. Top-level awaits split the body into
// segments; each segment after the first runs in a promise reaction.
type evaluation struct {
	ctx     context.Context
	rt      script.Runtime
	env     *env
	promise *loop.Promise
}

func (ev *evaluation) start() (*loop.Promise, error) {
	suspended, err := ev.run(0)
	if err != nil {
		ev.env.mod.status = statusFailed
		return nil, err
	}
	if !suspended {
		return nil, nil
	}
	return ev.promise, nil
}

// run executes body steps from i until the body ends or suspends.
func (ev *evaluation) run(i int) (bool, error) {
	body := ev.env.mod.code.body
	for ; i < len(body); i++ {
		s := body[i]
		if s.op != opAwait {
			if err := ev.exec(s); err != nil {
				return false, err
			}
			continue
		}

		ev.record("await", s.name)
		awaited := ev.awaitTarget(s)
		if ev.promise == nil {
			ev.promise = ev.rt.NewPromise("evaluate")
		}
		next := i + 1
		awaited.Then(func(v value.Value, err error) error {
			if err != nil {
				ev.fail(err)
				return nil
			}
			if s.as != "" {
				ev.env.mod.vars[s.as] = v
			}
			suspended, err := ev.run(next)
			if err != nil {
				ev.fail(err)
				return nil
			}
			if !suspended {
				ev.promise.Resolve(value.Null{})
			}
			return nil
		})
		return true, nil
	}
	return false, ev.finish()
}

func (ev *evaluation) fail(err error) {
	ev.env.mod.status = statusFailed
	ev.promise.Reject(err)
}

// finish computes the module's exports.
func (ev *evaluation) finish() error {
	m := ev.env.mod
	exports := make(value.Object, len(m.code.exports))
	for _, d := range m.code.exports {
		v, err := d.expr.eval(ev.env)
		if err != nil {
			return err
		}
		exports[d.name] = v
	}
	m.exports = exports
	m.status = statusEvaluated
	return nil
}

func (ev *evaluation) execAll(steps []step) error {
	for _, s := range steps {
		if err := ev.exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (ev *evaluation) exec(s step) error {
	spec := ev.env.spec
	switch s.op {
	case opLog:
		v, err := s.expr.eval(ev.env)
		if err != nil {
			return err
		}
		text := value.Text(v)
		ev.rt.Logger().Info("module log", "specifier", spec.String(), "message", text)
		ev.record("log", text)

	case opSet:
		v, err := s.expr.eval(ev.env)
		if err != nil {
			return err
		}
		ev.env.mod.vars[s.name] = v
		ev.record("set", s.name)

	case opMicrotask:
		ev.record("microtask", s.name)
		then := s.then
		ev.rt.QueueMicrotask(s.name, func() error { return ev.execAll(then) })

	case opTimeout:
		ev.record("timeout", s.name)
		then := s.then
		ev.rt.SetTimeout(s.name, s.delay, func() error { return ev.execAll(then) })

	case opIO:
		ev.record("io", s.name)
		p := ev.rt.StartIO(ev.ctx, s.name, ioWork(s.name, s.delay))
		ev.react(p, s)

	case opImport:
		ev.record("import", s.target)
		p := ev.rt.Import(ev.ctx, spec, s.target)
		ev.react(p, s)

	case opThrow:
		ev.record("throw", s.name)
		return &ThrowError{Specifier: spec, Message: s.name}

	case opReject:
		ev.record("reject", s.name)
		ev.rt.NewPromise("reject").Reject(&ThrowError{Specifier: spec, Message: s.name})
	}
	return nil
}

// react attaches a step's continuation to p. Without "as" or "then" the
// promise is left unobserved, so a rejection surfaces as unhandled.
func (ev *evaluation) react(p *loop.Promise, s step) {
	if s.as == "" && len(s.then) == 0 {
		return
	}
	p.Then(func(v value.Value, err error) error {
		if err != nil {
			return err
		}
		if s.as != "" {
			ev.env.mod.vars[s.as] = v
		}
		return ev.execAll(s.then)
	})
}

func (ev *evaluation) awaitTarget(s step) *loop.Promise {
	switch s.await {
	case awaitTimeout:
		p := ev.rt.NewPromise(s.name)
		ev.rt.SetTimeout(s.name, s.delay, func() error {
			p.Resolve(value.Null{})
			return nil
		})
		return p
	case awaitImport:
		return ev.rt.Import(ev.ctx, ev.env.spec, s.target)
	case awaitIO:
		return ev.rt.StartIO(ev.ctx, s.name, ioWork(s.name, s.delay))
	default:
		return ev.rt.NewPromise(s.name)
	}
}

func (ev *evaluation) record(name, detail string) {
	if rec := ev.rt.Recorder(); rec != nil {
		rec.Step(ev.env.spec, name, detail)
	}
}

// ioWork simulates an I/O operation that yields its own name after delay.
func ioWork(name string, delay time.Duration) func(context.Context) (value.Value, error) {
	return func(ctx context.Context) (value.Value, error) {
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.C:
			}
		}
		return value.String(name), nil
	}
}
