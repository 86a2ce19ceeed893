package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := Newf(KindCollectionNotFound, "Scan.Next", "collection %q missing", "shop.orders")
	wrapped := fmt.Errorf("scan failed: %w", err)

	assert.True(t, errors.Is(wrapped, ErrCollectionNotFound))
	assert.False(t, errors.Is(wrapped, ErrConnectionFailed))
	assert.Equal(t, KindCollectionNotFound, KindOf(wrapped))
	assert.Contains(t, err.Error(), "Scan.Next")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindConnectionFailed, "Pool.Acquire", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrConnectionFailed))
	assert.Nil(t, Wrap(KindConnectionFailed, "noop", nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("x: %w", ErrConnectionExhausted)))
	assert.False(t, Retryable(ErrAuthenticationFailed))
	assert.False(t, Retryable(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}
