package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ChangeChannel is the NOTIFY channel written by the links trigger. The
// payload is the user_id of the changed row.
const ChangeChannel = "links_changes"

// ChangeFeed signals when a user's rows may have changed.
type ChangeFeed interface {
	// Listen returns a channel receiving a signal per change for userID and a
	// function that stops listening.
	Listen(userID string) (<-chan struct{}, func(), error)
}

// fanout routes signals to per-user subscribers. Signals coalesce: a
// subscriber that has not consumed the previous one gets no second copy,
// since every signal triggers a full re-fetch anyway.
type fanout struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newFanout() *fanout {
	return &fanout{subs: make(map[string]map[chan struct{}]struct{})}
}

func (f *fanout) subscribe(userID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	f.mu.Lock()
	if f.subs[userID] == nil {
		f.subs[userID] = make(map[chan struct{}]struct{})
	}
	f.subs[userID][ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[userID], ch)
			if len(f.subs[userID]) == 0 {
				delete(f.subs, userID)
			}
		})
	}
}

func (f *fanout) publish(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs[userID] {
		signal(ch)
	}
}

func (f *fanout) publishAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, set := range f.subs {
		for ch := range set {
			signal(ch)
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// PQChangeFeed implements ChangeFeed with PostgreSQL LISTEN/NOTIFY.
type PQChangeFeed struct {
	*fanout
	listener *pq.Listener
	done     chan struct{}
	wg       sync.WaitGroup
	log      logrus.FieldLogger
}

// NewPQChangeFeed opens a dedicated listening connection to dsn.
func NewPQChangeFeed(dsn string, logger logrus.FieldLogger) (*PQChangeFeed, error) {
	log := logger.WithField("component", "change_feed")

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).WithField("event", ev).Warn("Listener connection event")
		}
	})
	if err := listener.Listen(ChangeChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
	}

	f := &PQChangeFeed{
		fanout:   newFanout(),
		listener: listener,
		done:     make(chan struct{}),
		log:      log,
	}
	f.wg.Add(1)
	go f.dispatch()

	log.WithField("channel", ChangeChannel).Info("Listening for link changes")
	return f, nil
}

// Listen implements ChangeFeed.
func (f *PQChangeFeed) Listen(userID string) (<-chan struct{}, func(), error) {
	ch, stop := f.subscribe(userID)
	return ch, stop, nil
}

func (f *PQChangeFeed) dispatch() {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected: notifications may have been missed.
				f.publishAll()
				continue
			}
			f.publish(n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.log.WithError(err).Warn("Listener ping failed")
				}
			}()
		}
	}
}

// Close stops dispatching and closes the listening connection.
func (f *PQChangeFeed) Close() error {
	close(f.done)
	f.wg.Wait()
	return f.listener.Close()
}
