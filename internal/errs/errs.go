package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Wrap adds context and preserves the error chain.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context and preserves the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// WithStack captures a stack trace once, at the root cause.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var se *StackError
	if errors.As(err, &se) {
		return err
	}
	return &StackError{err: err, stack: debug.Stack()}
}

type StackError struct {
	err   error
	stack []byte
}

func (e *StackError) Error() string { return e.err.Error() }
func (e *StackError) Unwrap() error { return e.err }
func (e *StackError) Stack() []byte { return e.stack }

// Kind names the first error kind found in the chain, or "" when none matches.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return ""
	}
}

// Loggable renders err as a structured slog group.
// Usage: slog.Any("err", errs.Loggable(err))
func Loggable(err error) slog.LogValuer { return loggable{err: err} }

type loggable struct{ err error }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.Any("chain", ErrorChainStrings(l.err)),
	}
	if kind := Kind(l.err); kind != "" {
		attrs = append(attrs, slog.String("kind", kind))
	}
	var ve *ValidationError
	if errors.As(l.err, &ve) && ve.Field != "" {
		attrs = append(attrs, slog.String("field", ve.Field))
	} else {
		var ee *EncodingError
		if errors.As(l.err, &ee) && ee.Field != "" {
			attrs = append(attrs, slog.String("field", ee.Field))
		}
	}
	var se *StackError
	if errors.As(l.err, &se) {
		attrs = append(attrs, slog.String("stack", string(se.Stack())))
	}
	return slog.GroupValue(attrs...)
}

// ErrorChainStrings flattens the unwrap tree depth first, outer to inner.
// Joined and multi-%w errors contribute every branch. Kind sentinels are skipped.
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}
	out := make([]string, 0, 8)
	var walk func(e error)
	walk = func(e error) {
		for e != nil {
			if !isSentinel(e) {
				out = append(out, e.Error())
			}
			switch x := e.(type) {
			case interface{ Unwrap() []error }:
				for _, inner := range x.Unwrap() {
					walk(inner)
				}
				return
			case interface{ Unwrap() error }:
				e = x.Unwrap()
			default:
				return
			}
		}
	}
	walk(err)
	return out
}

func isSentinel(err error) bool {
	return err == ErrValidation || err == ErrEncoding || err == ErrIntegrity || err == ErrIO
}
