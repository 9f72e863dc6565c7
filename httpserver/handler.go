package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skyportsystems/incubator-samza/appmaster"
)

// StatusServer serves the read-only job status surface: the latest job-state
// snapshot as JSON plus the prometheus registry. It never mutates anything.
type StatusServer struct {
	snapshot func() appmaster.Snapshot
	registry *prometheus.Registry
	server   *http.Server
}

func NewStatusServer(port int, snapshot func() appmaster.Snapshot, registry *prometheus.Registry) *StatusServer {
	s := &StatusServer{
		snapshot: snapshot,
		registry: registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.Status)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start serves in the background until Stop.
func (s *StatusServer) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Status server stopped: %v", err)
		}
	}()
	log.Infof("Status server listening on %v", s.server.Addr)
}

func (s *StatusServer) Stop() error {
	return s.server.Close()
}

func (s *StatusServer) Status(w http.ResponseWriter, r *http.Request) {
	res, err := json.Marshal(s.snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(res)
}
