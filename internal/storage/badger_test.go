package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkshelf/internal/domain"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// setupTestDB creates a temporary BadgerDB instance for testing.
// It returns the repository instance and a cleanup function.
func setupTestDB(t *testing.T) (*BadgerRepository, func()) {
	t.Helper()

	repo, err := NewBadgerRepository(t.TempDir(), testLogger())
	require.NoError(t, err, "Failed to create test BadgerDB repository")

	cleanup := func() {
		assert.NoError(t, repo.Close(), "Failed to close test BadgerDB repository")
	}
	return repo, cleanup
}

func ids(links []domain.Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.ID)
	}
	return out
}

func TestBadgerRepository_AddAndList(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	repo.now = func() time.Time { return base }
	id1, err := repo.Add(ctx, "alice", domain.Link{URL: "https://example.com/page1", Title: "Page 1", Tags: []string{"Go", "go"}})
	require.NoError(t, err)

	repo.now = func() time.Time { return base.Add(time.Minute) }
	id2, err := repo.Add(ctx, "alice", domain.Link{URL: "https://example.com/page2", Title: "Page 2", Category: "Go"})
	require.NoError(t, err)

	_, err = repo.Add(ctx, "bob", domain.Link{URL: "https://anothersite.net", Title: "Another Site"})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)

	links, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, links, 2)

	// Newest first.
	assert.Equal(t, []string{id2, id1}, ids(links))

	first := links[1]
	assert.Equal(t, "https://example.com/page1", first.URL)
	assert.False(t, first.IsRead)
	assert.Equal(t, base.UnixMilli(), first.CreatedAt)
	assert.Equal(t, domain.Uncategorized, first.Category)
	assert.Equal(t, []string{"go"}, first.Tags)

	bobs, err := repo.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "Another Site", bobs[0].Title)

	nobody, err := repo.List(ctx, "nobody")
	require.NoError(t, err, "Getting links for non-existent user should not error")
	assert.Empty(t, nobody)
}

func TestBadgerRepository_AddKeepsExplicitCreatedAt(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	id, err := repo.Add(context.Background(), "alice", domain.Link{URL: "https://example.com", CreatedAt: 42})
	require.NoError(t, err)

	links, err := repo.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, id, links[0].ID)
	assert.Equal(t, int64(42), links[0].CreatedAt)
}

func TestBadgerRepository_Update(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	id, err := repo.Add(ctx, "alice", domain.Link{URL: "https://example.com", Title: "T", Summary: "S", Category: "Go", Tags: []string{"go"}})
	require.NoError(t, err)

	before, err := repo.List(ctx, "alice")
	require.NoError(t, err)

	read := true
	update := domain.LinkUpdate{IsRead: &read}
	require.NoError(t, repo.Update(ctx, "alice", id, update))
	require.NoError(t, repo.Update(ctx, "alice", id, update), "repeating an update must be harmless")

	after, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, after, 1)

	want := before[0]
	want.IsRead = true
	assert.Equal(t, want, after[0], "only isRead should change")

	// Other users cannot touch alice's link.
	unread := false
	require.NoError(t, repo.Update(ctx, "mallory", id, domain.LinkUpdate{IsRead: &unread}))
	after, err = repo.List(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, after[0].IsRead)

	// Unknown ids are ignored.
	assert.NoError(t, repo.Update(ctx, "alice", "missing", update))
}

func TestBadgerRepository_Delete(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	toDelete, err := repo.Add(ctx, "carol", domain.Link{URL: "https://example.com/to_delete"})
	require.NoError(t, err)
	toKeep, err := repo.Add(ctx, "carol", domain.Link{URL: "https://example.com/to_keep"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "carol", toDelete))

	links, err := repo.List(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{toKeep}, ids(links))

	assert.NoError(t, repo.Delete(ctx, "carol", "does-not-exist"), "Deleting a non-existent link should not return an error")
	assert.NoError(t, repo.Delete(ctx, "carol", toDelete), "Deleting an already deleted link should not return an error")

	links, err = repo.List(ctx, "carol")
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestBadgerRepository_DeleteThenAddDoesNotResurrect(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	var deliveries [][]string
	record := func(links []domain.Link) { deliveries = append(deliveries, ids(links)) }

	deleted, err := repo.Add(ctx, "dave", domain.Link{URL: "https://example.com/a"})
	require.NoError(t, err)
	sub, err := repo.Subscribe(ctx, "dave", record)
	require.NoError(t, err)
	sub.Close()

	require.NoError(t, repo.Delete(ctx, "dave", deleted))
	sub, err = repo.Subscribe(ctx, "dave", record)
	require.NoError(t, err)
	sub.Close()

	added, err := repo.Add(ctx, "dave", domain.Link{URL: "https://example.com/a"})
	require.NoError(t, err)
	sub, err = repo.Subscribe(ctx, "dave", record)
	require.NoError(t, err)
	sub.Close()

	assert.Equal(t, [][]string{{deleted}, {}, {added}}, deliveries)
	assert.NotEqual(t, deleted, added)
}

func TestBadgerRepository_Snapshot(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	snap := []domain.Link{
		{ID: "old", URL: "https://example.com/old", Category: "Go", Tags: []string{}, CreatedAt: 1},
		{ID: "new", URL: "https://example.com/new", Category: "Go", Tags: []string{"go"}, CreatedAt: 2},
	}
	require.NoError(t, repo.SaveSnapshot("erin", snap))

	got, err := repo.LoadSnapshot("erin")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids(got))
	assert.Equal(t, "old", snap[0].ID, "the caller's slice must not be reordered")
}

func TestBadgerRepository_SubscribeRedeliversAfterEachChange(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	got := make(chan []string, 8)
	sub, err := repo.Subscribe(ctx, "frank", func(links []domain.Link) { got <- ids(links) })
	require.NoError(t, err)
	defer sub.Close()

	next := func(what string) []string {
		t.Helper()
		select {
		case l := <-got:
			return l
		case <-time.After(time.Second):
			t.Fatalf("no delivery after %s", what)
			return nil
		}
	}
	assert.Empty(t, next("subscribe"))

	id, err := repo.Add(ctx, "frank", domain.Link{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, next("add"))

	read := true
	require.NoError(t, repo.Update(ctx, "frank", id, domain.LinkUpdate{IsRead: &read}))
	assert.Equal(t, []string{id}, next("update"))

	require.NoError(t, repo.Delete(ctx, "frank", id))
	assert.Empty(t, next("delete"))

	// Changes to other users or to absent ids deliver nothing.
	_, err = repo.Add(ctx, "grace", domain.Link{URL: "https://example.com/b"})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "frank", "missing"))
	require.NoError(t, repo.Update(ctx, "frank", "missing", domain.LinkUpdate{IsRead: &read}))
	select {
	case l := <-got:
		t.Fatalf("unexpected delivery %v", l)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBadgerRepository_SubscriptionCloseStopsListening(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	sub, err := repo.Subscribe(context.Background(), "heidi", func([]domain.Link) {})
	require.NoError(t, err)
	sub.Close()

	repo.changes.mu.Lock()
	defer repo.changes.mu.Unlock()
	assert.Empty(t, repo.changes.subs)
}
