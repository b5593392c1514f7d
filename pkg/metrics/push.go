package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Pusher sends a registry to a Prometheus Pushgateway. One-shot runs exit
// before a scrape could happen, so they push instead.
type Pusher struct {
	url      string
	job      string
	gatherer prometheus.Gatherer
}

// NewPusher returns nil when url is empty; a nil Pusher is a no-op.
func NewPusher(url, job string, g prometheus.Gatherer) *Pusher {
	if url == "" {
		return nil
	}
	return &Pusher{url: url, job: job, gatherer: g}
}

// Push replaces the metrics of this job and mode on the gateway.
func (p *Pusher) Push(mode string) error {
	if p == nil {
		return nil
	}
	err := push.New(p.url, p.job).
		Gatherer(p.gatherer).
		Grouping("mode", mode).
		Push()
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", p.url, err)
	}
	return nil
}
