package app

import "time"

// Operation identifies one CLI invocation in the log. Its ID is stamped on
// every log line written during the invocation.
type Operation struct {
	ID      string
	Name    string
	Started time.Time
	Err     error
}

func NewOperation(name string, started time.Time) *Operation {
	return &Operation{
		ID:      started.UTC().Format("20060102T150405.000Z"),
		Name:    name,
		Started: started,
	}
}

// Fail records the error that ended the operation. The first error wins.
func (op *Operation) Fail(err error) {
	if op.Err == nil {
		op.Err = err
	}
}

// Status returns "success" or "error".
func (op *Operation) Status() string {
	if op.Err != nil {
		return "error"
	}
	return "success"
}
