package pipeline

import "fmt"

// ApplyError wraps a declarative apply failure from the cluster, workload,
// or gateway layer. The underlying tool error text is preserved verbatim
// for operators.
type ApplyError struct {
	Layer string
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s layer apply failed: %v", e.Layer, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }
