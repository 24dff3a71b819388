package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultRevalidateInterval is how often a running session is rechecked
const DefaultRevalidateInterval = time.Minute

// Refresher is a running revalidation loop
type Refresher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartRefresh runs CheckAuth every interval until ctx is done or the
// returned Refresher is stopped. The first check happens after one interval.
func (m *Manager) StartRefresh(ctx context.Context, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRevalidateInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Refresher{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				snap := m.CheckAuth(ctx)
				m.logger.Debug("session revalidated", "status", snap.Status.String())
			}
		}
	}()
	return r
}

// Stop cancels the loop and waits for it to exit. No check starts after
// Stop returns. Calling Stop more than once is safe.
func (r *Refresher) Stop() {
	r.once.Do(r.cancel)
	<-r.done
}

// Done is closed once the loop has exited
func (r *Refresher) Done() <-chan struct{} {
	return r.done
}
