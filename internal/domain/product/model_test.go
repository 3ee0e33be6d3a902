package product

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/id"
	"vendstock/internal/core/types"
)

func TestNewProduct_Validation(t *testing.T) {
	tests := []struct {
		name      string
		pName     string
		price     string
		shelfLife int
		wantField string
	}{
		{name: "valid", pName: "Cola", price: "1.50", shelfLife: 90},
		{name: "blank name", pName: "   ", price: "1.50", shelfLife: 90, wantField: "name"},
		{name: "negative price", pName: "Cola", price: "-0.01", shelfLife: 90, wantField: "price"},
		{name: "free is allowed", pName: "Sample", price: "0", shelfLife: 1},
		{name: "zero shelf life", pName: "Cola", price: "1", shelfLife: 0, wantField: "shelfLifeDays"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProduct(tt.pName, types.MustMoney(tt.price), tt.shelfLife)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.True(t, p.Active)
				return
			}
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, tt.wantField, appErr.Details["field"])
		})
	}
}

func TestSetters_RejectWithoutMutating(t *testing.T) {
	p, err := NewProduct("Chips", types.MustMoney("2.00"), 120)
	require.NoError(t, err)

	assert.Error(t, p.SetName(""))
	assert.Error(t, p.SetPrice(types.MustMoney("-1")))
	assert.Error(t, p.SetShelfLifeDays(-5))

	assert.Equal(t, "Chips", p.Name)
	assert.True(t, p.Price.Equal(types.MustMoney("2.00")))
	assert.Equal(t, 120, p.ShelfLifeDays)

	require.NoError(t, p.SetShelfLifeDays(30))
	assert.Equal(t, 30, p.ShelfLifeDays)
	assert.NoError(t, p.Validate(context.Background()))
}

func TestEqualAndSame(t *testing.T) {
	a, _ := NewProduct("Water", types.MustMoney("1.00"), 365)
	b, _ := NewProduct("Water", types.MustMoney("1.0"), 365)

	assert.True(t, a.Equal(b), "decimal scale does not matter")
	assert.True(t, a.Same(b), "unpersisted products compare by value")

	a.ID = id.New()
	b.ID = id.New()
	assert.True(t, a.Equal(b))
	assert.False(t, a.Same(b), "persisted products compare by key")

	c := a.Clone()
	c.Name = "Sparkling"
	assert.True(t, a.Same(c))
	assert.False(t, a.Equal(c))
}

func TestExpirationFrom(t *testing.T) {
	p, _ := NewProduct("Sandwich", types.MustMoney("4.25"), 3)
	assert.Equal(t, "2026-10-22", p.ExpirationFrom(types.MustParseDate("2026-10-19")).String())
}
