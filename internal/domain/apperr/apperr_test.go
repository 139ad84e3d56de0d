package apperr

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAs_ThroughWrap(t *testing.T) {
	base := Validation("invalid_coupon_codes", "unknown offer codes: A, B", "A", "B")
	err := errors.Wrap(base, "evaluate coupons")

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, e.Kind)
	assert.Equal(t, []string{"A", "B"}, e.Details)
	assert.Equal(t, "invalid_coupon_codes", CodeOf(err))
}

func TestKindOf_PlainError(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Empty(t, CodeOf(err))
}

func TestExternal_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := External("payment_gateway_error", "create gateway order", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindExternal, KindOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}
