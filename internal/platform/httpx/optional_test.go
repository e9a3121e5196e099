package httpx

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medstock/medstock/internal/platform/apperror"
)

type patchBody struct {
	Price     Optional[decimal.Decimal] `json:"price"`
	ExpiresOn Optional[string]          `json:"expires_on"`
}

func TestOptional_AbsentNullValue(t *testing.T) {
	var b patchBody
	require.NoError(t, json.Unmarshal([]byte(`{"price": null, "expires_on": "2025-01-31"}`), &b))

	assert.True(t, b.Price.Set)
	assert.Nil(t, b.Price.Value)
	assert.True(t, b.ExpiresOn.Set)
	require.NotNil(t, b.ExpiresOn.Value)
	assert.Equal(t, "2025-01-31", *b.ExpiresOn.Value)

	var empty patchBody
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.False(t, empty.Price.Set)
	assert.False(t, empty.ExpiresOn.Set)
}

func TestMoneyPatch(t *testing.T) {
	assert.Nil(t, MoneyPatch(Optional[decimal.Decimal]{}))

	cleared := MoneyPatch(Optional[decimal.Decimal]{Set: true})
	require.NotNil(t, cleared)
	assert.False(t, cleared.Valid)

	v := decimal.RequireFromString("12.50")
	set := MoneyPatch(Optional[decimal.Decimal]{Set: true, Value: &v})
	require.NotNil(t, set)
	assert.True(t, set.Valid)
	assert.True(t, set.Decimal.Equal(v))
}

func TestDatePatch(t *testing.T) {
	d, err := DatePatch("expires_on", Optional[string]{})
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = DatePatch("expires_on", Optional[string]{Set: true})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.IsZero())

	s := "2024-03-15"
	d, err = DatePatch("expires_on", Optional[string]{Set: true, Value: &s})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *d)

	bad := "15/03/2024"
	_, err = DatePatch("expires_on", Optional[string]{Set: true, Value: &bad})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestDatePtr(t *testing.T) {
	d, err := DatePtr("purchased_on", nil)
	require.NoError(t, err)
	assert.Nil(t, d)

	empty := ""
	d, err = DatePtr("purchased_on", &empty)
	require.NoError(t, err)
	assert.Nil(t, d)
}
