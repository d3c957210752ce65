package core

import "encoding/json"

// BatchFailure records why one input of a batch could not be processed.
type BatchFailure[T any] struct {
	Input  T      `json:"input"`
	Reason string `json:"reason"`
}

// BatchResult is returned by every best-effort batch operation.
// Items are processed independently, a failure never rolls back earlier items.
type BatchResult[T any] struct {
	Succeeded []T
	Failed    []BatchFailure[T]
}

func (r *BatchResult[T]) Succeed(in T) {
	r.Succeeded = append(r.Succeeded, in)
}

func (r *BatchResult[T]) Fail(in T, err error) {
	r.Failed = append(r.Failed, BatchFailure[T]{Input: in, Reason: err.Error()})
}

func (r BatchResult[T]) SuccessCount() int { return len(r.Succeeded) }
func (r BatchResult[T]) FailedCount() int  { return len(r.Failed) }

// Errors lists the failure reasons in input order.
func (r BatchResult[T]) Errors() []string {
	errs := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f.Reason)
	}
	return errs
}

func (r BatchResult[T]) MarshalJSON() ([]byte, error) {
	succeeded := r.Succeeded
	if succeeded == nil {
		succeeded = []T{}
	}
	failures := r.Failed
	if failures == nil {
		failures = []BatchFailure[T]{}
	}
	return json.Marshal(struct {
		Success   int               `json:"success"`
		Failed    int               `json:"failed"`
		Errors    []string          `json:"errors"`
		Succeeded []T               `json:"succeeded"`
		Failures  []BatchFailure[T] `json:"failures"`
	}{
		Success:   r.SuccessCount(),
		Failed:    r.FailedCount(),
		Errors:    r.Errors(),
		Succeeded: succeeded,
		Failures:  failures,
	})
}
