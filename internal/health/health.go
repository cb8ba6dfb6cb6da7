package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type Status struct {
	OK      bool              `json:"ok"`
	Message string            `json:"message,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HTTPHandler returns an HTTP handler that runs every check and reports the
// health status of the service. Any failing check turns the response into a 503.
func HTTPHandler(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok"}

		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		for _, name := range names {
			if st.Checks == nil {
				st.Checks = make(map[string]string, len(names))
			}
			if err := checks[name](ctx); err != nil {
				st.OK = false
				st.Message = name + " check failed"
				st.Checks[name] = err.Error()
				continue
			}
			st.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		if !st.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	}
}
