package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendstock/internal/domain/restock"
)

func TestRestock_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRestock(reg)

	m.SessionOpened()
	m.InstructionResolved(restock.KindRemoval)
	m.InstructionResolved(restock.KindRemoval)
	m.InstructionResolved(restock.KindAddition)
	m.CommitRefused(3)
	m.CommitFailed()
	m.VisitCommitted(15 * time.Minute)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolved.WithLabelValues("removal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolved.WithLabelValues("addition")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refused))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.committed))
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRestock(reg)
	m.SessionOpened()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vendstock_restock_sessions_opened_total 1")
}
