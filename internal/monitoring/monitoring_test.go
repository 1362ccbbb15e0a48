package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/chonal/lora-node/internal/config"
)

type testCheck struct {
	err error
}

func (c testCheck) Healthy() error {
	return c.err
}

func TestServeMux(t *testing.T) {
	var c config.Config
	c.Monitoring.PrometheusEndpoint = true
	c.Monitoring.HealthcheckEndpoint = true

	tests := []struct {
		name           string
		path           string
		checks         []HealthChecker
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "metrics",
			path:           "/metrics",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "healthy",
			path:           "/health",
			checks:         []HealthChecker{testCheck{}},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unhealthy",
			path:           "/health",
			checks:         []HealthChecker{testCheck{}, testCheck{err: errors.New("stack/mqtt: not connected")}},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "stack/mqtt: not connected",
		},
	}

	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			assert := require.New(t)

			rec := httptest.NewRecorder()
			newServeMux(c, tst.checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tst.path, nil))

			assert.Equal(tst.expectedStatus, rec.Code)
			if tst.expectedBody != "" {
				assert.Equal(tst.expectedBody, rec.Body.String())
			}
		})
	}

	t.Run("disabled endpoints", func(t *testing.T) {
		assert := require.New(t)

		rec := httptest.NewRecorder()
		newServeMux(config.Config{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(http.StatusNotFound, rec.Code)
	})
}
