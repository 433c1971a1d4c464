package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthService aggregates dependency probes for the readiness endpoint
type HealthService struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	timeout time.Duration
}

// HealthStatus is the readiness response body
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewHealthService creates a health service whose probes share timeout
func NewHealthService(timeout time.Duration) *HealthService {
	return &HealthService{checks: make(map[string]HealthCheck), timeout: timeout}
}

// Register adds a named probe
func (s *HealthService) Register(name string, check HealthCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Check runs every probe concurrently
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		s.mu.RLock()
		check := s.checks[name]
		s.mu.RUnlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := check(ctx); err != nil {
				results[i] = "unhealthy: " + err.Error()
				return
			}
			results[i] = "healthy"
		}()
	}
	wg.Wait()

	status := HealthStatus{Status: "healthy", Checks: make(map[string]string, len(names))}
	for i, name := range names {
		status.Checks[name] = results[i]
		if results[i] != "healthy" {
			status.Status = "unhealthy"
		}
	}
	return status
}

// LivenessHandler reports that the process is serving
func (s *HealthService) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"alive"}`))
}

// ReadinessHandler reports dependency health; 503 when any probe fails
func (s *HealthService) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	status := s.Check(r.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
