package collector

import (
	"context"
	"sync"

	"github.com/user/ghg-dashboard/internal/models"
)

// Future is the one-time hand-off between ingestion and the renderers.
// The first Publish wins; every Wait observes the same result. The result is
// fully written before the done channel is closed.
type Future struct {
	done chan struct{}
	once sync.Once
	data *models.CollectedData
	err  error
}

// NewFuture returns an unpublished Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future already published with data and err.
func Resolved(data *models.CollectedData, err error) *Future {
	f := NewFuture()
	f.Publish(data, err)
	return f
}

// Publish stores the result and releases all waiters. Later calls are ignored.
func (f *Future) Publish(data *models.CollectedData, err error) {
	f.once.Do(func() {
		f.data = data
		f.err = err
		close(f.done)
	})
}

// Done is closed once a result has been published.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is published or ctx is done.
func (f *Future) Wait(ctx context.Context) (*models.CollectedData, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
