package police

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"time"
)

// Simulator is a local stand-in for the Incident API used in development
// and tests. It assigns case ids in the same shape as the real service and
// keeps the submitted payloads in memory for inspection.
type Simulator struct {
	mu       sync.Mutex
	payloads map[string]Payload
	latency  time.Duration
	logger   *log.Logger
}

// NewSimulator builds a simulator with the given artificial latency.
func NewSimulator(latency time.Duration, logger *log.Logger) *Simulator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Simulator{
		payloads: make(map[string]Payload),
		latency:  latency,
		logger:   logger,
	}
}

// CreateIncident accepts any payload and returns a generated case id.
func (s *Simulator) CreateIncident(ctx context.Context, p Payload) (string, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.latency):
		}
	}

	id := fmt.Sprintf("VRT-%d-%06d", time.Now().Year(), rand.Intn(1_000_000))

	s.mu.Lock()
	s.payloads[id] = p
	s.mu.Unlock()

	s.logger.Printf("simulated incident created id=%s type=%s", id, p.IncidentType)
	return id, nil
}

// Payloads returns a copy of everything submitted so far, keyed by case id.
func (s *Simulator) Payloads() map[string]Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Payload, len(s.payloads))
	for k, v := range s.payloads {
		out[k] = v
	}
	return out
}
