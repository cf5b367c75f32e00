package models

import "fmt"

// Error codes used in internal error handling and log output.
const (
	ErrCodeConfigInvalid  = "CONFIG_INVALID"
	ErrCodeRenderTimeout  = "RENDER_TIMEOUT"
	ErrCodeSessionInvalid = "SESSION_INVALID"
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash   = "BROWSER_CRASH"
	ErrCodeFetchFailed    = "FETCH_FAILED"
	ErrCodeExportFailed   = "EXPORT_FAILED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// CrawlError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type CrawlError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(code, message string, err error) *CrawlError {
	return &CrawlError{Code: code, Message: message, Err: err}
}

// ErrCode extracts the crawl error code from an error chain, or "" if the
// chain contains no CrawlError.
func ErrCode(err error) string {
	for err != nil {
		if ce, ok := err.(*CrawlError); ok {
			return ce.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsSessionInvalid reports whether the error chain carries a session-invalid
// signal from the rendering backend.
func IsSessionInvalid(err error) bool {
	return ErrCode(err) == ErrCodeSessionInvalid
}

// IsRenderTimeout reports whether the error chain is a readiness timeout.
// A readiness timeout never indicates a broken session.
func IsRenderTimeout(err error) bool {
	return ErrCode(err) == ErrCodeRenderTimeout
}
