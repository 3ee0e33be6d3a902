package bootstrap

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"vendstock/internal/config"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/product"
)

func TestOpenStorage_Badger(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{StorageDriver: config.DriverBadger, BadgerDir: t.TempDir(), SessionTTL: time.Hour}

	st, err := OpenStorage(ctx, cfg, clock.System())
	require.NoError(t, err)
	defer st.Close()

	name, pinger := st.Pinger()
	assert.Equal(t, config.DriverBadger, name)
	require.NoError(t, pinger.Ping(ctx))

	svc := NewServices(st, clock.System(), cfg.SessionTTL, nil)
	p, err := product.NewProduct("Water", types.MustMoney("0.90"), 365)
	require.NoError(t, err)
	require.NoError(t, svc.Products.Create(ctx, p))

	got, err := svc.Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Water", got.Name)
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	_, err := OpenStorage(context.Background(), config.Config{StorageDriver: "sqlite"}, clock.System())
	require.Error(t, err)
}

func TestSetupTracing_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := setupTracing(&buf, "vendstock-test")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "restock.complete")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "restock.complete")
	assert.Contains(t, buf.String(), "vendstock-test")
}
