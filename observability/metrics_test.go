package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestFlashLoanMetrics(t *testing.T) {
	m := FlashLoan()
	require.Same(t, m, FlashLoan())

	m.RecordOperation("borrow", "", time.Millisecond)
	m.RecordOperation("borrow", "reentrancy", time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("borrow", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("borrow", "reentrancy")))

	m.SetPool(10, 4, 1)
	require.Equal(t, 4.0, testutil.ToFloat64(m.activeLoans))
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("flashloand", "/v1/borrow", 409, time.Millisecond)
	m.RecordThrottle("flashloand", "")
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("flashloand", "/v1/borrow", "409")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.throttles.WithLabelValues("flashloand", "unknown")))

	var nilMetrics *FlashLoanMetrics
	nilMetrics.RecordOperation("stake", "", 0)
}
