package health

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Check reports why a dependency is not ready, or nil.
type Check func() error

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readyz returns a handler that answers 200 "ready\n" when every check
// passes, and 503 listing the failures otherwise.
func Readyz(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		var failures []string
		for _, name := range names {
			if err := checks[name](); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			}
		}

		w.Header().Set("Content-Type", "text/plain")
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready\n%s\n", strings.Join(failures, "\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	}
}
