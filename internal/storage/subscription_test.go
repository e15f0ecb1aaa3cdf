package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"linkshelf/internal/domain"
)

func TestWatch_DeliversInitialSetAndRefetchesOnChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var fetches atomic.Int32
	load := func(ctx context.Context) ([]domain.Link, error) {
		n := fetches.Add(1)
		return []domain.Link{{ID: string(rune('a' + n - 1))}}, nil
	}

	changes := make(chan struct{}, 1)
	got := make(chan []domain.Link, 4)
	sub, err := watch(context.Background(), changes, load, func(l []domain.Link) { got <- l }, testLogger())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "a", (<-got)[0].ID)

	changes <- struct{}{}
	select {
	case l := <-got:
		assert.Equal(t, "b", l[0].ID)
	case <-time.After(time.Second):
		t.Fatal("no re-delivery after change")
	}

	sub.Close()
	sub.Close()
}

func TestWatch_NoChangeChannelDeliversOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls int
	sub, err := watch(context.Background(), nil, func(ctx context.Context) ([]domain.Link, error) {
		return nil, nil
	}, func([]domain.Link) { calls++ }, testLogger())
	require.NoError(t, err)
	sub.Close()

	assert.Equal(t, 1, calls)
}

func TestWatch_InitialLoadErrorIsReturned(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("boom")
	called := false
	sub, err := watch(context.Background(), make(chan struct{}), func(ctx context.Context) ([]domain.Link, error) {
		return nil, boom
	}, func([]domain.Link) { called = true }, testLogger())

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, sub)
	assert.False(t, called)
}

func TestWatch_FailedRefetchIsSkipped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var fetches atomic.Int32
	load := func(ctx context.Context) ([]domain.Link, error) {
		switch fetches.Add(1) {
		case 2:
			return nil, errors.New("temporarily unavailable")
		default:
			return []domain.Link{{ID: "ok"}}, nil
		}
	}

	changes := make(chan struct{}, 1)
	got := make(chan []domain.Link, 4)
	sub, err := watch(context.Background(), changes, load, func(l []domain.Link) { got <- l }, testLogger())
	require.NoError(t, err)
	defer sub.Close()
	<-got

	changes <- struct{}{}
	changes <- struct{}{}
	select {
	case l := <-got:
		assert.Equal(t, "ok", l[0].ID)
	case <-time.After(time.Second):
		t.Fatal("no delivery after the failed re-fetch")
	}
	assert.Equal(t, int32(3), fetches.Load())
	assert.Empty(t, got, "the failed re-fetch delivers nothing")
}

func TestWatch_ChangesDuringFetchCollapseIntoOneRefetch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var fetches atomic.Int32
	load := func(ctx context.Context) ([]domain.Link, error) {
		n := fetches.Add(1)
		if n == 2 {
			started <- struct{}{}
			<-release
		}
		return []domain.Link{{ID: string(rune('a' + n - 1))}}, nil
	}

	changes := make(chan struct{}, 1)
	got := make(chan []domain.Link, 8)
	sub, err := watch(context.Background(), changes, load, func(l []domain.Link) { got <- l }, testLogger())
	require.NoError(t, err)
	defer sub.Close()
	<-got

	signal(changes)
	<-started
	for i := 0; i < 5; i++ {
		signal(changes)
	}
	close(release)

	var order []string
	for len(order) < 2 {
		select {
		case l := <-got:
			order = append(order, l[0].ID)
		case <-time.After(time.Second):
			t.Fatalf("expected two deliveries, got %v", order)
		}
	}
	assert.Equal(t, []string{"b", "c"}, order, "deliveries follow fetch order")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), fetches.Load(), "signals during a fetch collapse into one follow-up")
	assert.Empty(t, got)
}

func TestWatch_NoDeliveryAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	first := true
	load := func(ctx context.Context) ([]domain.Link, error) {
		if first {
			first = false
			return nil, nil
		}
		started <- struct{}{}
		<-release
		return []domain.Link{{ID: "late"}}, nil
	}

	var mu sync.Mutex
	var delivered [][]domain.Link
	changes := make(chan struct{}, 1)
	sub, err := watch(context.Background(), changes, load, func(l []domain.Link) {
		mu.Lock()
		delivered = append(delivered, l)
		mu.Unlock()
	}, testLogger())
	require.NoError(t, err)

	changes <- struct{}{}
	<-started

	closed := make(chan struct{})
	go func() {
		sub.Close()
		close(closed)
	}()
	// Close waits for the in-flight fetch, which is released here.
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-closed

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, delivered, 1, "a fetch resolving after Close must not be delivered")
}

func TestWatch_CloseStartedFromCallback(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var sub *Subscription
	closed := make(chan struct{})
	changes := make(chan struct{}, 1)
	deliveries := 0
	sub, err := watch(context.Background(), changes, func(ctx context.Context) ([]domain.Link, error) {
		return nil, nil
	}, func([]domain.Link) {
		deliveries++
		if deliveries == 2 {
			go func() {
				sub.Close()
				close(closed)
			}()
		}
	}, testLogger())
	require.NoError(t, err)

	changes <- struct{}{}
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close started from the callback did not return")
	}
}

func TestFanout(t *testing.T) {
	f := newFanout()
	a1, stopA1 := f.subscribe("alice")
	a2, stopA2 := f.subscribe("alice")
	b, stopB := f.subscribe("bob")

	f.publish("alice")
	f.publish("alice")
	assert.Len(t, a1, 1, "signals coalesce")
	assert.Len(t, a2, 1)
	assert.Len(t, b, 0)

	<-a1
	<-a2
	f.publishAll()
	assert.Len(t, a1, 1)
	assert.Len(t, b, 1)

	stopA1()
	stopA1()
	stopA2()
	stopB()
	assert.Empty(t, f.subs)
}
