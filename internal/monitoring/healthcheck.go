package monitoring

import (
	"net/http"
)

func healthCheckHandler(checks []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checks {
			if err := c.Healthy(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(err.Error()))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}
