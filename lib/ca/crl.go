package ca

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultCRLInterval is the period of the CRL refresh
const DefaultCRLInterval = 10 * time.Minute

var (
	crlRefreshCounter = metrics.NewCounter(`kbridge_ca_crl_refreshes_total`)
	crlFailureCounter = metrics.NewCounter(`kbridge_ca_crl_refresh_failures_total`)
)

// CRLRefresher keeps a local copy of the revocation list of a Client and
// answers revocation checks from it.
type CRLRefresher struct {
	client   Client
	interval time.Duration
	attempts uint64

	revoked atomic.Pointer[xsync.MapOf[string, struct{}]]

	mu   sync.RWMutex
	last time.Time // last successful refresh
	next time.Time // next scheduled refresh
}

// NewCRLRefresher creates a refresher. Nothing is revoked before the first
// Refresh.
func NewCRLRefresher(client Client, interval time.Duration) *CRLRefresher {
	if interval <= 0 {
		interval = DefaultCRLInterval
	}
	r := &CRLRefresher{
		client:   client,
		interval: interval,
		attempts: 3,
	}
	r.revoked.Store(xsync.NewMapOf[string, struct{}]())
	return r
}

// Run refreshes immediately and then every interval until ctx is done.
func (r *CRLRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			Logger.Errorf("CRL refresh failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh pulls the revocation list, retrying transient failures. The
// previous list stays in effect when every attempt fails.
func (r *CRLRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.next = time.Now().Add(r.interval)
	r.mu.Unlock()

	var crl CRL
	op := func() error {
		var err error
		crl, err = r.client.CRL(ctx)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.attempts-1), ctx)

	if err := backoff.Retry(op, b); err != nil {
		crlFailureCounter.Inc()
		return errs.Wrap(errs.ErrCA, err, "fetch CRL")
	}

	revoked := xsync.NewMapOf[string, struct{}]()
	for _, id := range crl.CardIDs {
		revoked.Store(id, struct{}{})
	}
	r.revoked.Store(revoked)

	r.mu.Lock()
	r.last = time.Now()
	r.mu.Unlock()

	crlRefreshCounter.Inc()
	Logger.Infof("CRL has been fetched, it contains %d elements", len(crl.CardIDs))
	return nil
}

// LastRefresh returns the time of the last successful refresh, zero before
// the first one.
func (r *CRLRefresher) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// NextRefresh returns the time the next refresh is scheduled for.
func (r *CRLRefresher) NextRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.next
}

// IsRevokedID reports whether the card id is on the local revocation list.
func (r *CRLRefresher) IsRevokedID(cardID string) bool {
	_, ok := r.revoked.Load().Load(cardID)
	return ok
}

// IsRevoked reports whether certificate is on the local revocation list.
func (r *CRLRefresher) IsRevoked(certificate []byte) (bool, error) {
	cardID, err := CardID(certificate)
	if err != nil {
		return false, err
	}
	return r.IsRevokedID(cardID), nil
}
