package ember

// protect implements spec.md §4.8's pcall: Go's panic/recover stands
// in for the reference implementation's setjmp/longjmp chain (§9
// blesses this substitution directly). fn runs with the thread's
// current top saved; on any error, upvalues above that top are
// closed and the saved top is restored before the error value is
// reported to the caller.
func protect(th *Thread, fn func() ([]Value, error)) (results []Value, errVal Value, kind ErrKind) {
	savedTop := th.top
	savedErrfunc := th.errfunc
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = newRuntimeError(th, "%v", r)
			}
			closeUpvaluesDownTo(th, savedTop)
			th.top = savedTop
			th.errfunc = savedErrfunc
			kind = kindOf(err)
			errVal = errorValue(th, err)
		}
	}()
	res, err := fn()
	if err != nil {
		closeUpvaluesDownTo(th, savedTop)
		th.top = savedTop
		th.errfunc = savedErrfunc
		return nil, errorValue(th, err), kindOf(err)
	}
	return res, NilValue, KindNone
}

func errorValue(th *Thread, err error) Value {
	switch e := err.(type) {
	case *RuntimeError:
		if !e.Value.IsNil() {
			return e.Value
		}
		return StringValue(th.global.NewString(e.Message))
	case *OutOfMemoryError:
		return StringValue(th.global.NewString(e.Error()))
	case *HandlerError:
		return StringValue(th.global.NewString(e.Error()))
	default:
		return StringValue(th.global.NewString(err.Error()))
	}
}

// pcallAPI is the host-facing entry point for `pcall(f, args...)`:
// returns (true, results...) or (false, errorValue).
func pcallAPI(th *Thread, f Value, args []Value) []Value {
	res, errv, kind := protect(th, func() ([]Value, error) {
		return call(th, f, args, -1)
	})
	if kind == KindNone {
		return append([]Value{TrueValue}, res...)
	}
	return []Value{FalseValue, errv}
}

// xpcallAPI is `xpcall(f, handler, args...)`: the handler runs (still
// protected, spec.md ERRERR) with the error value while the stack
// that raised it is still logically available for a traceback.
func xpcallAPI(th *Thread, f Value, handler Value, args []Value) []Value {
	res, errv, kind := protect(th, func() ([]Value, error) {
		return call(th, f, args, -1)
	})
	if kind == KindNone {
		return append([]Value{TrueValue}, res...)
	}
	hres, herrv, hkind := protect(th, func() ([]Value, error) {
		return call(th, handler, []Value{errv}, -1)
	})
	if hkind != KindNone {
		return []Value{FalseValue, StringValue(th.global.NewString((&HandlerError{}).Error()))}
	}
	_ = herrv
	return append([]Value{FalseValue}, hres...)
}
