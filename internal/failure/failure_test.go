package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := NotFound("resolver.resolve", "field %q", "Cost")
	wrapped := fmt.Errorf("update_form: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrTimeout))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, `field "Cost"`, DetailOf(wrapped))
}

func TestErrorString(t *testing.T) {
	err := Session("browser.attach", errors.New("connection refused"))
	assert.Equal(t, "browser.attach: SessionFailure: connection refused", err.Error())
	assert.Equal(t, "connection refused", errors.Unwrap(err).Error())
}

func TestKindOfContextErrors(t *testing.T) {
	assert.Equal(t, KindSession, KindOf(fmt.Errorf("x: %w", context.Canceled)))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestValidationRejectedDetail(t *testing.T) {
	err := ValidationRejected("dialog.upload", "Row 2: Cost must be a valid integer")
	assert.True(t, errors.Is(err, ErrValidationRejected))
	assert.Equal(t, "Row 2: Cost must be a valid integer", DetailOf(err))
}
