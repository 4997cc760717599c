package render

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRender          = errors.New("render error")
	ErrNotImplemented  = errors.New("not implemented")
)

// Error carries a kind and the message reported to the caller verbatim
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidArgf(format string, args ...any) error {
	return &Error{Kind: ErrInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// renderFailure keeps the engine's message as the error text
func renderFailure(cause error) error {
	return &Error{Kind: ErrRender, Msg: cause.Error(), Err: cause}
}

func renderErrorf(cause error, format string, args ...any) error {
	return &Error{Kind: ErrRender, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func notImplementedf(format string, args ...any) error {
	return &Error{Kind: ErrNotImplemented, Msg: fmt.Sprintf(format, args...)}
}
