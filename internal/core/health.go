package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds all probes together. A probe still running at
// the deadline is reported as timed out.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// ProbeFunc adapts a function to HealthProbe. A failing probe that is not
// Critical degrades the report without turning it into a 503.
type ProbeFunc struct {
	ProbeName string
	Critical  bool
	Fn        func(ctx context.Context) error
}

func (p ProbeFunc) Name() string                    { return p.ProbeName }
func (p ProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

func isCritical(p HealthProbe) bool {
	if pf, ok := p.(ProbeFunc); ok {
		return pf.Critical
	}
	return true
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently. It answers 200 "healthy" when
// all pass, 200 "degraded" when only non-critical probes fail and 503
// "unhealthy" otherwise.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(probes))
		wg      sync.WaitGroup
	)
	for _, probe := range probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()

			var err error
			func() {
				defer func() {
					if v := recover(); v != nil {
						err = fmt.Errorf("probe panicked: %v", v)
					}
				}()
				err = p.Check(ctx)
			}()

			mu.Lock()
			results[p.Name()] = err
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	resp := healthResponse{Status: "healthy", Components: make(map[string]componentStatus, len(probes))}
	status := http.StatusOK
	for _, probe := range probes {
		name := probe.Name()
		err, finished := results[name]
		switch {
		case !finished:
			err = fmt.Errorf("health check timed out")
		case err == nil:
			resp.Components[name] = componentStatus{Status: "healthy"}
			continue
		}

		resp.Components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		if isCritical(probe) {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		} else if resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}

	JSON(w, r, status, resp)
}
