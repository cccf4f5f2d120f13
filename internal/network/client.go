package network

import (
	"net/http"
	"time"

	"github.com/enoki-dex/enoki-wrapped-token/config"
)

// NewHTTPClient builds the HTTP client nodes use for all remote calls.
// When the config enables latency simulation, every request is delayed
// by a random duration in the configured range.
func NewHTTPClient(cfg config.NetworkConfig, timeout time.Duration) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.DelayEnabled {
		transport = NewLatencyTransport(transport,
			time.Duration(cfg.MinDelayMs)*time.Millisecond,
			time.Duration(cfg.MaxDelayMs)*time.Millisecond,
		)
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
