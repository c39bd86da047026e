package pagecontrol

import "fmt"

const (
	CodeValidation     = "VALIDATION"
	CodePageNotFound   = "PAGE_NOT_FOUND"
	CodeEvalFailure    = "EVAL_FAILURE"
	CodeEvalTimeout    = "EVAL_TIMEOUT"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// PageInfo describes a market tab mapped from a browser target.
type PageInfo struct {
	MarketID string `json:"market_id"`
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

// Viewport holds the inner dimensions of a page's window.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MountStatus reports the state of the overlay mount on a page.
type MountStatus struct {
	Mounted bool `json:"mounted"`
	Created bool `json:"created"`
}

// OpenResult reports the outcome of an open-url request.
type OpenResult struct {
	Success  bool   `json:"success"`
	TargetID string `json:"target_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
