package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassificationFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityFatal, false},
		{ErrCodeStorageBusy, CategoryStorage, SeverityWarning, true},
		{ErrCodeIndexTimeout, CategoryIndex, SeverityWarning, true},
		{ErrCodeInvalidRootline, CategoryValidation, SeverityError, false},
		{ErrCodeIndexingFailed, CategoryInternal, SeverityError, false},
		{"bad", CategoryInternal, SeverityError, false},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			err := New(tc.code, "msg", nil)
			assert.Equal(t, tc.category, err.Category)
			assert.Equal(t, tc.severity, err.Severity)
			assert.Equal(t, tc.retryable, err.Retryable)
		})
	}
}

func TestSyncError_ChainHelpers(t *testing.T) {
	cause := stderrors.New("database is locked")
	wrapped := fmt.Errorf("update item: %w", New(ErrCodeStorageBusy, "write failed", cause))

	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.Equal(t, ErrCodeStorageBusy, GetCode(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeStorageBusy))
	assert.False(t, HasCode(wrapped, ErrCodeIndexWrite))
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "database is locked")
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestFormatForCLI(t *testing.T) {
	assert.Equal(t, "", FormatForCLI(nil))
	assert.Equal(t, "Error: plain", FormatForCLI(stderrors.New("plain")))

	err := New(ErrCodeUnknownSite, "no site for root page", nil).WithDetail("root", "42")
	out := FormatForCLI(err)
	assert.Contains(t, out, "no site for root page")
	assert.Contains(t, out, "root: 42")
	assert.Contains(t, out, ErrCodeUnknownSite)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	cfg := BusyRetryConfig()
	cfg.InitialDelay = time.Millisecond

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return stderrors.New("syntax error")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesUntilSuccess(t *testing.T) {
	cfg := BusyRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return New(ErrCodeStorageBusy, "locked", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return stderrors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
