package metrics2

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/easyctf/openctf-judge/go/sklog"
)

// InitPrometheus starts serving Prometheus metrics on the given port at
// /metrics. The server runs on its own goroutine and only stops when the
// process exits.
func InitPrometheus(port string) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	go func() {
		sklog.Fatal(http.ListenAndServe(port, r))
	}()
}
