package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health is the body served on /healthz.
type Health struct {
	Status  string `json:"status"`
	Program string `json:"program,omitempty"`

	// Campaigns maps campaign IDs to their latest state.
	Campaigns map[string]string `json:"campaigns"`
}

// Server provides an optional HTTP server for metrics and a liveness probe.
// Long campaigns run for minutes to hours; scrape it while a campaign is in flight.
type Server struct {
	server    *http.Server
	collector *Collector
	errChan   chan error
}

// NewServer creates a metrics server on the specified address.
// Example address: ":9090" or "localhost:9090"
// When collector is not nil, /healthz lists the campaigns it has seen with their state.
func NewServer(addr string, collector *Collector) *Server {
	s := &Server{
		collector: collector,
		errChan:   make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthz)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	health := Health{Status: "ok", Campaigns: map[string]string{}}
	if s.collector != nil {
		health.Program = s.collector.Program()
		health.Campaigns = s.collector.CampaignStates()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// Start starts the metrics server in a goroutine.
// Returns immediately. Check Err() to detect startup failures.
// Use Shutdown to stop the server.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errChan <- err
		}
	}()
}

// Err returns any error that occurred during server startup or operation.
// This is non-blocking and returns nil if no error has occurred.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
