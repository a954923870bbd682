package provider

import (
	"net/http"
	"time"

	"github.com/okian/gauntlet/pkg/logger"
)

// HTTPOption applies a configuration option to the HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithToken sets the initial bearer credential.
func WithToken(token string) HTTPOption {
	return func(p *HTTPProvider) {
		p.token = token
	}
}

// WithRefreshURL sets the endpoint that issues a fresh credential.
func WithRefreshURL(url string) HTTPOption {
	return func(p *HTTPProvider) {
		p.refreshURL = url
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(log logger.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		if log != nil {
			p.log = log
		}
	}
}

// SimOption applies a configuration option to the SimulatedProvider.
type SimOption func(*SimulatedProvider)

// WithLatencyRange sets the simulated response latency bounds.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimOption {
	return func(s *SimulatedProvider) {
		if minLatency >= 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithFailureRate sets the probability in [0, 1] that a call fails.
func WithFailureRate(p float64) SimOption {
	return func(s *SimulatedProvider) {
		if p >= 0 && p <= 1 {
			s.failureRate = p
		}
	}
}

// WithSeed seeds the simulation.
func WithSeed(seed uint64) SimOption {
	return func(s *SimulatedProvider) {
		s.seed = seed
	}
}
