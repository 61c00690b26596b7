package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies every failure RouteAI can report.
type Kind int

const (
	KindInsufficientCredit Kind = iota + 1
	KindPromptNotFound
	KindInvalidProvider
	KindMissingPayload
	KindUnsupportedPromptType
	KindUpstreamProviderFailure
	KindLoggingFailure
	KindPersistenceFailure
	KindCanceled
	KindRateLimited
	KindBadRequest
	KindDeductionAnomaly
)

var kindNames = map[Kind]string{
	KindInsufficientCredit:      "insufficient_credit",
	KindPromptNotFound:          "prompt_not_found",
	KindInvalidProvider:         "invalid_provider",
	KindMissingPayload:          "missing_payload",
	KindUnsupportedPromptType:   "unsupported_prompt_type",
	KindUpstreamProviderFailure: "upstream_provider_failure",
	KindLoggingFailure:          "logging_failure",
	KindPersistenceFailure:      "persistence_failure",
	KindCanceled:                "canceled",
	KindRateLimited:             "rate_limited",
	KindBadRequest:              "bad_request",
	KindDeductionAnomaly:        "deduction_anomaly",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind_%d", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is the single error type returned by RouteAI.
type Error struct {
	Kind     Kind
	Provider string
	Timeout  bool
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Provider != "" && e.Timeout:
		return fmt.Sprintf("%s (%s, timeout): %s", e.Kind, e.Provider, msg)
	case e.Provider != "":
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Provider, msg)
	case msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of a gateway error, or 0 for any other error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Warning is a non-fatal problem reported alongside a successful response.
type Warning struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}
