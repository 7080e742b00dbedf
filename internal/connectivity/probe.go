package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Prober detects connectivity by periodically issuing a HEAD request
// against the remote base URL. Any response, including an error status,
// counts as reachable; only transport failures count as offline.
type Prober struct {
	*notifier

	url      string
	interval time.Duration
	client   *http.Client
	log      *logrus.Logger
}

// NewProber creates a Prober against url, checking every interval.
func NewProber(url string, interval time.Duration, log *logrus.Logger) *Prober {
	return &Prober{
		notifier: newNotifier(true),
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      log,
	}
}

// Run probes until ctx is cancelled. It performs one immediate check so
// subscribers see a correct state without waiting a full interval.
func (p *Prober) Run(ctx context.Context) {
	p.check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

// Check performs a single probe and returns the resulting state.
func (p *Prober) Check(ctx context.Context) bool {
	p.check(ctx)
	return p.Online()
}

func (p *Prober) check(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.log.WithError(err).Warn("connectivity probe request invalid")
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			p.set(false)
		}
		return
	}
	resp.Body.Close()
	p.set(true)
}
