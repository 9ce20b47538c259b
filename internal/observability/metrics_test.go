package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordTick(time.Second, nil)
	m.RecordTick(time.Second, errors.New("x"))
	m.RecordOrder("buy", nil)
	m.RecordOrder("sell", errors.New("x"))
	m.RecordCall("execution", "buy", time.Millisecond, errors.New("x"))

	exec := 9.5
	m.UpdateBalances(10, &exec)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("buy", "filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("sell", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollaboratorErrors.WithLabelValues("execution", "buy")))
	assert.Equal(t, -0.5, testutil.ToFloat64(m.BalanceDrift))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccessfulTick), 0.0)
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.OpenPositions.Set(3)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_account_open_positions 3"))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("dup", prometheus.NewRegistry())
		NewMetrics("dup", prometheus.NewRegistry())
	})
}
