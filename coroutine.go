package ember

// yieldMsg is what a coroutine's goroutine sends back to its resumer:
// either a yield (ok, more to come), a normal return (ok, done), or an
// error that unwound the coroutine's body (spec.md §9's adaptation of
// the reference implementation's setjmp-based yield to Go's native
// concurrency primitive).
type yieldMsg struct {
	values []Value
	err    error
	done   bool
}

// newCoroutine wraps a closure in a fresh Thread whose body runs on
// its own goroutine, rendezvousing with the resumer over resumeCh and
// yieldCh (spec.md §4.13 "Coroutines"). The goroutine blocks on its
// first receive from resumeCh until the first resume() call supplies
// the initial arguments, so creating a coroutine never itself runs
// script code.
func newCoroutine(th *Thread, fn Value) *Thread {
	co := newThread(th.global)
	co.status = ThreadSuspended
	co.resumeCh = make(chan []Value)
	co.yieldCh = make(chan yieldMsg)

	go func() {
		args := <-co.resumeCh
		res, err := call(co, fn, args, -1)
		co.done = true
		co.yieldCh <- yieldMsg{values: res, err: err, done: true}
	}()

	return co
}

// resume implements coroutine.resume(co, ...): sends args to co's
// goroutine and blocks for its next yield/return/error. Only a
// suspended coroutine may be resumed; resuming a dead or running one
// is a reported error rather than a panic, matching spec.md §4.13.
func resume(th *Thread, co *Thread, args []Value) (bool, []Value) {
	if co.status == ThreadDead {
		return false, []Value{StringValue(th.global.NewString("cannot resume dead coroutine"))}
	}
	if co.status == ThreadRunning || co.status == ThreadNormal {
		return false, []Value{StringValue(th.global.NewString("cannot resume non-suspended coroutine"))}
	}

	prevStatus := th.status
	th.status = ThreadNormal
	co.status = ThreadRunning

	co.resumeCh <- args
	msg := <-co.yieldCh

	th.status = prevStatus

	if msg.err != nil {
		co.status = ThreadDead
		return false, []Value{errorValue(co, msg.err)}
	}
	if msg.done {
		co.status = ThreadDead
	} else {
		co.status = ThreadSuspended
	}
	return true, msg.values
}

// yield implements coroutine.yield(...) called from inside a running
// coroutine's own goroutine: it hands values to the resumer and
// blocks until resumed again, returning whatever resume() was called
// with next.
func yield(co *Thread, values []Value) []Value {
	// co.nny always counts at least this call's own native frame (see
	// vm.go's call()), so the boundary check is against 1, not 0.
	if co.nny > 1 {
		panic(newRuntimeError(co, "attempt to yield across a C-call boundary"))
	}
	co.yieldCh <- yieldMsg{values: values}
	return <-co.resumeCh
}

// coroutineStatus implements coroutine.status(co), reporting "running"
// for the thread that is the caller's own (spec.md §4.13).
func coroutineStatus(th, co *Thread) string {
	if co == th {
		return "running"
	}
	return co.status.String()
}

func newCoroutineLibrary(g *globalState) *Table {
	lib := newTable(g, 0, 4)
	lib.rawSet(g, StringValue(g.NewString("create")), ClosureValue(newNativeClosure(g, "coroutine.create", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 || !args[0].IsClosure() {
			return nil, newRuntimeError(th, "bad argument #1 to 'create' (function expected)")
		}
		co := newCoroutine(th, args[0])
		return []Value{ThreadValue(co)}, nil
	})))
	lib.rawSet(g, StringValue(g.NewString("resume")), ClosureValue(newNativeClosure(g, "coroutine.resume", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 || !args[0].IsThread() {
			return nil, newRuntimeError(th, "bad argument #1 to 'resume' (coroutine expected)")
		}
		ok, vals := resume(th, args[0].AsThread(), args[1:])
		return append([]Value{BoolValue(ok)}, vals...), nil
	})))
	lib.rawSet(g, StringValue(g.NewString("yield")), ClosureValue(newNativeClosure(g, "coroutine.yield", func(th *Thread, args []Value) ([]Value, error) {
		return yield(th, args), nil
	})))
	lib.rawSet(g, StringValue(g.NewString("status")), ClosureValue(newNativeClosure(g, "coroutine.status", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 || !args[0].IsThread() {
			return nil, newRuntimeError(th, "bad argument #1 to 'status' (coroutine expected)")
		}
		return []Value{StringValue(th.global.NewString(coroutineStatus(th, args[0].AsThread())))}, nil
	})))
	lib.rawSet(g, StringValue(g.NewString("isyieldable")), ClosureValue(newNativeClosure(g, "coroutine.isyieldable", func(th *Thread, args []Value) ([]Value, error) {
		return []Value{BoolValue(th.nny <= 1)}, nil
	})))
	lib.rawSet(g, StringValue(g.NewString("running")), ClosureValue(newNativeClosure(g, "coroutine.running", func(th *Thread, args []Value) ([]Value, error) {
		return []Value{ThreadValue(th), BoolValue(th == th.global.mainTh)}, nil
	})))
	lib.rawSet(g, StringValue(g.NewString("wrap")), ClosureValue(newNativeClosure(g, "coroutine.wrap", func(th *Thread, args []Value) ([]Value, error) {
		if len(args) == 0 || !args[0].IsClosure() {
			return nil, newRuntimeError(th, "bad argument #1 to 'wrap' (function expected)")
		}
		co := newCoroutine(th, args[0])
		wrapped := newNativeClosure(g, "wrapped coroutine", func(th *Thread, args []Value) ([]Value, error) {
			ok, vals := resume(th, co, args)
			if !ok {
				msg := "?"
				if len(vals) > 0 {
					msg = vals[0].ToStringValue()
				}
				return nil, newRuntimeError(th, "%s", msg)
			}
			return vals, nil
		})
		return []Value{ClosureValue(wrapped)}, nil
	})))
	return lib
}
