package ember

import "fmt"

// ErrKind identifies which of the error kinds in the language's
// recovery model produced an error. It is threaded through
// pcall/xpcall so the host can tell a runtime failure from an
// out-of-memory condition without string-matching messages.
type ErrKind int

const (
	KindNone ErrKind = iota
	KindYield
	KindRuntime
	KindSyntax
	KindOutOfMemory
	KindErrorInHandler
	KindFinalizer
	KindFile
)

func (k ErrKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindYield:
		return "yield"
	case KindRuntime:
		return "runtime error"
	case KindSyntax:
		return "syntax error"
	case KindOutOfMemory:
		return "out of memory"
	case KindErrorInHandler:
		return "error in error handling"
	case KindFinalizer:
		return "error in finalizer"
	case KindFile:
		return "file error"
	}
	return "unknown error"
}

// RuntimeError is thrown for type errors, arithmetic on non-numbers,
// indexing nil, calling a non-callable, and stack overflow. It carries
// the already-"where"-prefixed message and the Value that pcall would
// hand back to the script.
type RuntimeError struct {
	Message   string
	Value     Value
	Traceback string
}

func (e *RuntimeError) Error() string { return e.Message }

// SyntaxError is produced by the lexer and parser (C9/C10) and by a
// binary chunk loader that detects a header mismatch.
type SyntaxError struct {
	Source  string
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// OutOfMemoryError is the preregistered error object returned when the
// allocator hook fails even after an emergency collection. Its message
// is a constant so reporting it never needs to allocate.
type OutOfMemoryError struct{}

func (e *OutOfMemoryError) Error() string { return "not enough memory" }

var errOutOfMemory = &OutOfMemoryError{}

// HandlerError wraps a failure that happened inside an error handler
// itself (ERRERR); the original error is discarded per spec.md §7.
type HandlerError struct{}

func (e *HandlerError) Error() string { return "error in error handling" }

// FinalizerError wraps a panic/error raised from within a finalizer
// metamethod (ERRGCMM).
type FinalizerError struct {
	Inner error
}

func (e *FinalizerError) Error() string {
	return fmt.Sprintf("error in __gc metamethod (%s)", e.Inner)
}

// FileError reports a file that can't be opened or read; kindOf
// classifies it as KindFile. No function in this package returns it.
type FileError struct {
	Path  string
	Inner error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("cannot open %s: %s", e.Path, e.Inner)
}

// yieldSignal is the non-error status that kindOf maps to KindYield.
// coroutine.go's yield suspends the coroutine's goroutine over
// channels and does not construct a yieldSignal.
type yieldSignal struct {
	values []Value
}

func (yieldSignal) Error() string { return "attempt to yield" }

// kindOf classifies an arbitrary error into one of the Kind values so
// the protected-call machinery (protect.go) can set a thread's status
// without type-switching at every call site.
func kindOf(err error) ErrKind {
	if err == nil {
		return KindNone
	}
	switch err.(type) {
	case *RuntimeError:
		return KindRuntime
	case *SyntaxError:
		return KindSyntax
	case *OutOfMemoryError:
		return KindOutOfMemory
	case *HandlerError:
		return KindErrorInHandler
	case *FinalizerError:
		return KindFinalizer
	case *FileError:
		return KindFile
	case yieldSignal:
		return KindYield
	default:
		return KindRuntime
	}
}

// newRuntimeError builds a RuntimeError with the "source:line:" prefix
// that `where()` prepends in the reference implementation, recovered
// from the thread's currently-running Ember call frame, if any.
func newRuntimeError(th *Thread, format string, args ...interface{}) *RuntimeError {
	msg := fmt.Sprintf(format, args...)
	if th != nil {
		if ci := th.currentCallInfo(); ci != nil && ci.isEmber() {
			msg = fmt.Sprintf("%s:%d: %s", ci.proto.Source, ci.currentLine(), msg)
		}
	}
	var v Value
	if th != nil && th.global != nil {
		v = StringValue(th.global.NewString(msg))
	} else {
		v = NilValue
	}
	return &RuntimeError{Message: msg, Value: v}
}
