package batch

import "slices"

// Result aggregates the outcome of one batch invocation. It is returned
// by value and not mutated afterwards.
type Result struct {
	SuccessCount int      `json:"success_count"`
	FailCount    int      `json:"fail_count"`
	FailedFiles  []string `json:"failed_files,omitempty"`
	OutputFiles  []string `json:"output_files,omitempty"`
	Cancelled    bool     `json:"cancelled"`
}

// Total returns the number of items with a recorded outcome.
func (r Result) Total() int {
	return r.SuccessCount + r.FailCount
}

// AllFailed builds a Result attributing every input to FailCount, used
// when a batch worker dies before producing a real result.
func AllFailed(sourcePaths []string) Result {
	return Result{
		FailCount:   len(sourcePaths),
		FailedFiles: slices.Clone(sourcePaths),
	}
}
