package vegas

import "fmt"

// Status records how a gene score was obtained. Every computation ends in
// exactly one of these states.
type Status int

const (
	// NotRun is the initial state, and also the final state when the spectrum
	// has a single eigenvalue and the closed form was used.
	NotRun Status = iota

	// Converged and Fail are the outcomes of single algorithm mode.
	Converged
	Fail

	// The remaining states are the outcomes of cascading mode.
	DaviesSuccess
	DaviesFailFarebrotherSuccess
	DaviesFailFarebrotherFail
	DaviesLowPrecisionFarebrotherFail
	DaviesLowPrecisionFarebrotherSuccess
)

var statusNames = [...]string{
	NotRun:                               "NOT_RUN",
	Converged:                            "CONVERGED",
	Fail:                                 "FAIL",
	DaviesSuccess:                        "DAVIES_SUCCESS",
	DaviesFailFarebrotherSuccess:         "DAVIES_FAIL_FAREBROTHER_SUCCESS",
	DaviesFailFarebrotherFail:            "DAVIES_FAIL_FAREBROTHER_FAIL",
	DaviesLowPrecisionFarebrotherFail:    "DAVIES_LOWPRECISION_FAREBROTHER_FAIL",
	DaviesLowPrecisionFarebrotherSuccess: "DAVIES_LOWPRECISION_FAREBROTHER_SUCCESS",
}

// Statuses lists every status in declaration order.
func Statuses() []Status {
	out := make([]Status, len(statusNames))
	for i := range out {
		out[i] = Status(i)
	}
	return out
}

// String returns the status name as written to result tables.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}
