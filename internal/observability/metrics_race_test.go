package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently
// without registration conflicts
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.registry)
			assert.NotNil(t, m.Toast)
			assert.NotNil(t, m.Recovery)
			assert.NotNil(t, m.Performance)
			assert.NotNil(t, m.HTTP)
			assert.NotNil(t, m.Datastore)
		})
	}
	wg.Wait()
}

func TestHandler_ExposesToastMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Toast.RecordEnqueued("high")
	m.Recovery.RecordFallback("WEBGL_CONTEXT_LOST")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `toastd_toasts_enqueued_total{priority="high"} 1`)
	assert.Contains(t, string(body), `toastd_recovery_fallbacks_total{kind="WEBGL_CONTEXT_LOST"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
