package plan

import "fmt"

// RuntimeError covers expression type errors, negative SKIP/LIMIT,
// deleting a vertex with edges without DETACH, and unknown operators
// reached at execution time.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string { return "query runtime error: " + e.Msg }

func runtimeErrorf(format string, args ...interface{}) error {
	return &RuntimeError{Msg: fmt.Sprintf(format, args...)}
}

// AbortError signals cooperative cancellation: the interpreter's
// should_abort flag was observed true between pulls.
type AbortError struct{}

func (e *AbortError) Error() string { return "hinted abort" }
