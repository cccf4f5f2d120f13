package network

import (
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// LatencyTransport injects a random delay in front of every request.
// Node-to-node calls in this system are awaited while a node's operation
// lock is held, so exercising shards and manager under realistic
// latencies surfaces ordering assumptions that localhost hides.
type LatencyTransport struct {
	base     http.RoundTripper
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLatencyTransport wraps base with a delay drawn uniformly from
// [minDelay, maxDelay] per request. A nil base means the default
// transport.
func NewLatencyTransport(base http.RoundTripper, minDelay, maxDelay time.Duration) *LatencyTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &LatencyTransport{
		base:     base,
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *LatencyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	delay := t.nextDelay()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	return t.base.RoundTrip(req)
}

// nextDelay is called from concurrent requests; rand.Rand is not safe
// for concurrent use
func (t *LatencyTransport) nextDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxDelay > t.minDelay {
		return t.minDelay + time.Duration(t.rng.Int63n(int64(t.maxDelay-t.minDelay)))
	}
	return t.minDelay
}
