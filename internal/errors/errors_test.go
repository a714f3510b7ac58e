package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

// =============================================================================
// ErrorType Tests
// =============================================================================

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{Unknown, "unknown"},
		{Network, "network"},
		{Timeout, "timeout"},
		{Navigation, "navigation"},
		{Extraction, "extraction"},
		{Launch, "launch"},
		{Crash, "crash"},
		{PoolExhausted, "pool_exhausted"},
		{PoolClosed, "pool_closed"},
		{Policy, "policy"},
		{NotFound, "not_found"},
		{Cancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.errType.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorType_Classification(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
		fatal     bool
	}{
		{Network, true, false},
		{Timeout, true, false},
		{Navigation, false, false},
		{Extraction, false, false},
		{PoolExhausted, false, false},
		{Launch, false, true},
		{Crash, false, true},
		{PoolClosed, false, true},
		{Cancelled, false, true},
		{Unknown, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.errType.String(), func(t *testing.T) {
			if got := tt.errType.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := tt.errType.IsFatal(); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

// =============================================================================
// CrawlError Tests
// =============================================================================

func TestCrawlError_Error(t *testing.T) {
	err := NewNavigationError("https://example.com", fmt.Errorf("net::ERR_ABORTED"))
	want := "navigation error during navigate on https://example.com: navigation failed (caused by: net::ERR_ABORTED)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err = NewLaunchError(nil)
	want = "launch error during launch: browser could not be started"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCrawlError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("chrome exited")
	err := NewCrashError("https://example.com", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !errors.Is(err, &CrawlError{Type: Crash}) {
		t.Error("errors.Is should match the same type")
	}
	if errors.Is(err, &CrawlError{Type: Timeout}) {
		t.Error("errors.Is should not match a different type")
	}

	wrapped := fmt.Errorf("crawl aborted: %w", err)
	if !IsFatal(wrapped) {
		t.Error("wrapped crash should be fatal")
	}
	if GetErrorType(wrapped) != Crash {
		t.Errorf("GetErrorType() = %v, want crash", GetErrorType(wrapped))
	}
}

func TestErrPoolClosed(t *testing.T) {
	if !errors.Is(ErrPoolClosed, &CrawlError{Type: PoolClosed}) {
		t.Error("ErrPoolClosed should have type PoolClosed")
	}
	if !IsFatal(ErrPoolClosed) {
		t.Error("ErrPoolClosed should be fatal")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("https://example.com", "element #main")
	if err.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", err.StatusCode)
	}
	if GetStatusCode(err) != 404 {
		t.Errorf("GetStatusCode() = %d, want 404", GetStatusCode(err))
	}
}

func TestNewHTTPStatusError(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{404, NotFound, false},
		{403, Unknown, false},
		{429, Unknown, true},
		{500, Unknown, true},
		{503, Unknown, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := NewHTTPStatusError("https://example.com", tt.status)
			if err.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", err.Type, tt.wantType)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

// =============================================================================
// Categorize Tests
// =============================================================================

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCategorize(t *testing.T) {
	existing := NewExtractionError("https://example.com", "title", nil)

	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"crawl error passthrough", existing, Extraction},
		{"context canceled", context.Canceled, Cancelled},
		{"deadline exceeded", context.DeadlineExceeded, Timeout},
		{"net timeout", timeoutErr{}, Timeout},
		{"dns error", &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}, Network},
		{"chrome name error", errors.New("net::ERR_NAME_NOT_RESOLVED"), Network},
		{"other", errors.New("boom"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err, "https://example.com")
			if got.Type != tt.want {
				t.Errorf("Categorize() type = %v, want %v", got.Type, tt.want)
			}
		})
	}

	if Categorize(nil, "") != nil {
		t.Error("Categorize(nil) should be nil")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Error("plain error should not be retryable")
	}
	if IsRetryable(NewCrashError("", nil)) {
		t.Error("crash should not be retryable")
	}
}

// =============================================================================
// Retrier Tests
// =============================================================================

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2,
		RetryableTypes: []ErrorType{Network, Timeout},
	}
}

func TestRetrier_Do_Success(t *testing.T) {
	r := NewRetrier(fastRetryConfig(3))
	result := r.Do(context.Background(), "fetch", "https://example.com", func(ctx context.Context) error {
		return nil
	})

	if !result.Success {
		t.Error("expected success")
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
}

func TestRetrier_Do_RetryThenSucceed(t *testing.T) {
	r := NewRetrier(fastRetryConfig(3))
	calls := 0
	result := r.Do(context.Background(), "fetch", "https://example.com", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewNetworkError("https://example.com", "fetch", nil)
		}
		return nil
	})

	if !result.Success {
		t.Errorf("expected success, got %v", result.LastError)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	r := NewRetrier(fastRetryConfig(2))
	result := r.Do(context.Background(), "fetch", "https://example.com", func(ctx context.Context) error {
		return NewTimeoutError("https://example.com", "fetch", nil)
	})

	if result.Success {
		t.Error("expected failure")
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if GetErrorType(result.LastError) != Timeout {
		t.Errorf("LastError type = %v, want timeout", GetErrorType(result.LastError))
	}
}

func TestRetrier_Do_NoRetryForNonRetryable(t *testing.T) {
	r := NewRetrier(fastRetryConfig(3))
	result := r.Do(context.Background(), "fetch", "https://example.com", func(ctx context.Context) error {
		return NewHTTPStatusError("https://example.com", 404)
	})

	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
}

func TestRetrier_Do_ContextCancellation(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2})
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := r.Do(ctx, "fetch", "https://example.com", func(ctx context.Context) error {
		return NewNetworkError("https://example.com", "fetch", nil)
	})

	if result.Success {
		t.Error("expected failure")
	}
	if GetErrorType(result.LastError) != Cancelled {
		t.Errorf("LastError type = %v, want cancelled", GetErrorType(result.LastError))
	}
}
