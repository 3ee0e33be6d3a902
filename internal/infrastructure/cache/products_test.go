package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/id"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/product"
)

type countingRepo struct {
	items map[id.ID]*product.Product
	gets  int
}

func newCountingRepo() *countingRepo {
	return &countingRepo{items: make(map[id.ID]*product.Product)}
}

func (r *countingRepo) Create(_ context.Context, p *product.Product) error {
	p.EnsureID()
	r.items[p.ID] = p.Clone()
	return nil
}

func (r *countingRepo) Update(_ context.Context, p *product.Product) error {
	r.items[p.ID] = p.Clone()
	return nil
}

func (r *countingRepo) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	r.gets++
	p, ok := r.items[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID)
	}
	return p.Clone(), nil
}

func (r *countingRepo) List(context.Context, product.ListFilter) ([]*product.Product, error) {
	return nil, nil
}

func seed(t *testing.T, c *ProductCache, name string) *product.Product {
	t.Helper()
	p, err := product.NewProduct(name, types.MustMoney("1.00"), 10)
	require.NoError(t, err)
	require.NoError(t, c.Create(context.Background(), p))
	return p
}

func TestProductCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	c := NewProductCache(repo, nil)
	p := seed(t, c, "Cola")

	for range 3 {
		got, err := c.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Cola", got.Name)
	}
	assert.Equal(t, 1, repo.gets)
	assert.Equal(t, Stats{Entries: 1, Hits: 2, Misses: 1}, c.GetStats())
}

func TestProductCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewProductCache(newCountingRepo(), nil)
	p := seed(t, c, "Cola")

	got, err := c.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, got.SetName("Changed"))

	again, err := c.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cola", again.Name)
}

func TestProductCache_UpdateInvalidates(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	c := NewProductCache(repo, nil)
	p := seed(t, c, "Cola")

	_, err := c.GetByID(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, p.SetName("Cola Zero"))
	require.NoError(t, c.Update(ctx, p))

	got, err := c.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cola Zero", got.Name)
	assert.Equal(t, 2, repo.gets)
}

func TestProductCache_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	c := NewProductCache(repo, nil)
	missing := id.New()

	for range 2 {
		_, err := c.GetByID(ctx, missing)
		assert.True(t, apperror.IsNotFound(err))
	}
	assert.Equal(t, 2, repo.gets)
	assert.Zero(t, c.GetStats().Entries)
}

func TestProductCache_HandleNotification(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		channel     string
		payload     func(a, b *product.Product) string
		wantEntries int
		wantHeard   int
	}{
		{"drops one product", ChannelProductsChanged, func(a, _ *product.Product) string { return a.ID.String() }, 1, 1},
		{"unparsable payload purges", ChannelProductsChanged, func(_, _ *product.Product) string { return "bulk" }, 0, 1},
		{"other channel ignored", "machines_changed", func(a, _ *product.Product) string { return a.ID.String() }, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewProductCache(newCountingRepo(), nil)
			a, b := seed(t, c, "Cola"), seed(t, c, "Water")
			for _, p := range []*product.Product{a, b} {
				_, err := c.GetByID(ctx, p.ID)
				require.NoError(t, err)
			}

			heard := 0
			c.OnInvalidation(func(string, string) { heard++ })
			c.OnInvalidation(func(string, string) { panic("listener bug") })

			c.handleNotification(tt.channel, tt.payload(a, b))
			assert.Equal(t, tt.wantEntries, c.GetStats().Entries)
			assert.Equal(t, tt.wantHeard, heard)
		})
	}
}

func TestProductCache_StartWithoutPoolIsNoop(t *testing.T) {
	c := NewProductCache(newCountingRepo(), nil)
	c.Start(context.Background())
	c.Stop()
	assert.False(t, c.started)
}
