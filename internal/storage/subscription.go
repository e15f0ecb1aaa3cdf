package storage

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"linkshelf/internal/domain"
)

// Subscription is a live link feed. Close stops further deliveries.
type Subscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	onStop func()
}

// Close stops the subscription and waits for its goroutine to exit, so no
// delivery starts after Close returns. It must not be called synchronously
// from the delivery callback, which runs on that goroutine.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.onStop != nil {
			s.onStop()
		}
		s.wg.Wait()
	})
}

// loader fetches the user's full set.
type loader func(ctx context.Context) ([]domain.Link, error)

// watch delivers load() before returning and re-runs it for every signal on
// changes. Re-fetches run one at a time on a single goroutine, so signals
// arriving during a fetch collapse into one follow-up fetch and deliveries
// keep the order of the fetches. A failed initial load is returned; a failed
// re-fetch is logged and skipped.
func watch(ctx context.Context, changes <-chan struct{}, load loader, deliver func([]domain.Link), log logrus.FieldLogger) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel}

	links, err := load(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	deliver(links)

	if changes == nil {
		return sub, nil
	}

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					log.Debug("Change feed closed, subscription stops refreshing")
					return
				}
				links, err := load(ctx)
				if err != nil {
					log.WithError(err).Warn("Re-fetch after change failed")
					continue
				}
				if ctx.Err() != nil {
					return
				}
				deliver(links)
			}
		}
	}()

	return sub, nil
}
