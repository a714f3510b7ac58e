// Package errors provides the error taxonomy shared by the browser pool,
// the crawl engine and the scraping endpoints.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Network represents connection and DNS failures.
	Network
	// Timeout represents a page load or request timeout.
	Timeout
	// Navigation represents a failed browser navigation.
	Navigation
	// Extraction represents a failure reading content from a loaded page.
	Extraction
	// Launch represents a browser that could not be started or connected.
	Launch
	// Crash represents a browser that died or stopped responding mid-job.
	Crash
	// PoolExhausted marks a borrow served by a temporary instance.
	PoolExhausted
	// PoolClosed is returned when borrowing from a pool after Shutdown.
	PoolClosed
	// Policy represents a rejected URL or invalid crawl policy.
	Policy
	// NotFound represents a missing element, task or resource.
	NotFound
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case Navigation:
		return "navigation"
	case Extraction:
		return "extraction"
	case Launch:
		return "launch"
	case Crash:
		return "crash"
	case PoolExhausted:
		return "pool_exhausted"
	case PoolClosed:
		return "pool_closed"
	case Policy:
		return "policy"
	case NotFound:
		return "not_found"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable reports whether errors of this type may be retried by
// callers that opt into retries. The pool and crawl engine never retry.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case Network, Timeout:
		return true
	default:
		return false
	}
}

// IsFatal reports whether an error of this type ends the borrow or the job.
func (t ErrorType) IsFatal() bool {
	switch t {
	case Launch, Crash, PoolClosed, Cancelled:
		return true
	default:
		return false
	}
}

// CrawlError represents a categorized error.
type CrawlError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Retryable  bool
}

// Error implements the error interface.
func (e *CrawlError) Error() string {
	var b strings.Builder
	b.WriteString(e.Type.String())
	b.WriteString(" error during ")
	b.WriteString(e.Operation)
	if e.URL != "" {
		b.WriteString(" on ")
		b.WriteString(e.URL)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// Is matches another *CrawlError of the same type.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(errType ErrorType, url, operation, message string, cause error) *CrawlError {
	return &CrawlError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: errType.IsRetryable(),
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Timeout, url, operation, "timed out", cause)
}

// NewNavigationError creates a navigation error.
func NewNavigationError(url string, cause error) *CrawlError {
	return NewCrawlError(Navigation, url, "navigate", "navigation failed", cause)
}

// NewExtractionError creates an extraction error.
func NewExtractionError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Extraction, url, operation, "extraction failed", cause)
}

// NewLaunchError creates a browser launch error.
func NewLaunchError(cause error) *CrawlError {
	return NewCrawlError(Launch, "", "launch", "browser could not be started", cause)
}

// NewCrashError creates a browser crash error.
func NewCrashError(url string, cause error) *CrawlError {
	return NewCrawlError(Crash, url, "crawl", "browser crashed or became unresponsive", cause)
}

// NewPoolExhaustedError describes a borrow that overflowed the pool.
func NewPoolExhaustedError(capacity int) *CrawlError {
	return NewCrawlError(PoolExhausted, "", "borrow",
		fmt.Sprintf("all %d pooled browsers busy, using temporary instance", capacity), nil)
}

// ErrPoolClosed is returned by Borrow after Shutdown.
var ErrPoolClosed = NewCrawlError(PoolClosed, "", "borrow", "browser pool is shut down", nil)

// NewPolicyError creates a policy error.
func NewPolicyError(url, reason string) *CrawlError {
	return NewCrawlError(Policy, url, "policy", reason, nil)
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(url, what string) *CrawlError {
	err := NewCrawlError(NotFound, url, "lookup", what+" not found", nil)
	err.StatusCode = 404
	return err
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *CrawlError {
	return NewCrawlError(Cancelled, url, operation, "operation cancelled", context.Canceled)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *CrawlError {
	if err == nil {
		return nil
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "request", err)
	}

	return NewCrawlError(Unknown, url, "request", err.Error(), err)
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "ERR_NAME_NOT_RESOLVED") ||
		strings.Contains(errStr, "ERR_CONNECTION")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Retryable
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsFatal reports whether err aborts a borrow or a crawl job.
func IsFatal(err error) bool {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type.IsFatal()
	}
	return false
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type
	}
	return Unknown
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.StatusCode
	}
	return 0
}

// NewHTTPStatusError maps an unexpected HTTP status from the static
// fetcher. 429 and 5xx are retryable.
func NewHTTPStatusError(url string, statusCode int) *CrawlError {
	errType := Unknown
	if statusCode == 404 {
		errType = NotFound
	}
	err := NewCrawlError(errType, url, "fetch", fmt.Sprintf("unexpected status %d", statusCode), nil)
	err.StatusCode = statusCode
	err.Retryable = statusCode == 429 || statusCode >= 500
	return err
}
