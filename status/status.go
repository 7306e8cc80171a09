// Package status is the backend-neutral result model shared by providers and the
// adapter. Providers report a Code per call; the adapter reduces every Code to one
// of five Outcomes through Classify and never inspects backend errors directly.
package status

import "fmt"

// Code is a backend result code. Providers translate their native errors and
// status lines into one of these values.
type Code int

const (
	CodeSuccess Code = iota
	CodeNotFound
	CodeNotStored
	CodeDataExists // CAS token no longer matches
	CodeBadKey
	CodeConnectionFailure
	CodeNoServers
	CodeTimeout
	CodeProtocolError
	CodeServerError
	CodeClientError
	CodeUnknown
)

var codeNames = [...]string{
	CodeSuccess:           "SUCCESS",
	CodeNotFound:          "NOT_FOUND",
	CodeNotStored:         "NOT_STORED",
	CodeDataExists:        "DATA_EXISTS",
	CodeBadKey:            "BAD_KEY",
	CodeConnectionFailure: "CONNECTION_FAILURE",
	CodeNoServers:         "NO_SERVERS",
	CodeTimeout:           "TIMEOUT",
	CodeProtocolError:     "PROTOCOL_ERROR",
	CodeServerError:       "SERVER_ERROR",
	CodeClientError:       "CLIENT_ERROR",
	CodeUnknown:           "UNKNOWN",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Outcome is the small stable category every Code maps to.
type Outcome int

const (
	Success Outcome = iota
	NotFound
	NotStored
	CASConflict
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case NotFound:
		return "NOT_FOUND"
	case NotStored:
		return "NOT_STORED"
	case CASConflict:
		return "CAS_CONFLICT"
	default:
		return "FATAL"
	}
}

// Classify maps a backend code to its outcome. Adding a backend code only
// requires a new case here.
func Classify(c Code) Outcome {
	switch c {
	case CodeSuccess:
		return Success
	case CodeNotFound:
		return NotFound
	case CodeNotStored:
		return NotStored
	case CodeDataExists:
		return CASConflict
	default:
		return Fatal
	}
}

// Result is what a provider reports for one call: a code plus the backend's
// diagnostic message (empty on success).
type Result struct {
	Code    Code
	Message string
}

// OK is the successful result.
var OK = Result{Code: CodeSuccess}

// Failed builds a result from a code and message.
func Failed(c Code, msg string) Result { return Result{Code: c, Message: msg} }

func (r Result) Outcome() Outcome { return Classify(r.Code) }
func (r Result) Ok() bool         { return r.Code == CodeSuccess }

// Err converts a non-successful result into a *BackendFault for op.
// Calling it with a successful result is a programming error and returns
// an error wrapping ErrPrecondition instead.
func (r Result) Err(op string) error {
	if r.Code == CodeSuccess {
		return fmt.Errorf("%w: result code %d (%s) is not an error", ErrPrecondition, int(r.Code), r.Code)
	}
	return &BackendFault{Op: op, Code: r.Code, Message: r.Message}
}
