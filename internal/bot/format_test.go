package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkshelf/internal/collection"
	"linkshelf/internal/domain"
	"linkshelf/internal/ingest"
)

func TestParseCommand(t *testing.T) {
	cmd, arg, ok := parseCommand("/Tags  Go, web dev ")
	require.True(t, ok)
	assert.Equal(t, "/tags", cmd)
	assert.Equal(t, "Go, web dev", arg)

	cmd, arg, ok = parseCommand("/list@linkshelf_bot unread")
	require.True(t, ok)
	assert.Equal(t, "/list", cmd)
	assert.Equal(t, "unread", arg)

	_, _, ok = parseCommand("https://example.com")
	assert.False(t, ok)
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"Go", "web dev"}, splitTags(" Go, ,web dev,"))
	assert.Empty(t, splitTags(""))
}

func TestListFilter(t *testing.T) {
	f, err := listFilter("/list", "")
	require.NoError(t, err)
	assert.Equal(t, collection.Filter{State: collection.All}, f)

	f, err = listFilter("/list", "read")
	require.NoError(t, err)
	assert.Equal(t, collection.Read, f.State)

	_, err = listFilter("/list", "category")
	assert.Error(t, err)

	f, err = listFilter("/src", "Example.com")
	require.NoError(t, err)
	assert.Equal(t, collection.Filter{State: collection.Source, Source: "example.com"}, f)

	f, err = listFilter("/tag", "#go")
	require.NoError(t, err)
	assert.Equal(t, "go", f.Tag)

	_, err = listFilter("/search", "")
	assert.Error(t, err)
}

func TestFormatDraft(t *testing.T) {
	out := formatDraft(ingest.Draft{
		URL: "https://go.dev",
		Analysis: domain.Analysis{
			Title: "Go", Summary: "A language", Category: "Programming", Tags: []string{"go", "lang"},
		},
	})
	assert.Contains(t, out, "Go\n\nA language")
	assert.Contains(t, out, "Category: Programming")
	assert.Contains(t, out, "Tags: #go #lang")
	assert.Contains(t, out, "https://go.dev")
}

func TestLinkKeyboard(t *testing.T) {
	kb := linkKeyboard(domain.Link{ID: "abc", IsRead: true})
	require.Len(t, kb.InlineKeyboard, 1)
	row := kb.InlineKeyboard[0]
	assert.Equal(t, "Mark unread", row[0].Text)
	assert.Equal(t, "read:abc", row[0].CallbackData)
	assert.Equal(t, "del:abc", row[1].CallbackData)
}

func TestFormatLink(t *testing.T) {
	out := formatLink(domain.Link{
		Title: "Pasta", Category: "Cuisine", URL: "https://www.example.com/p", Tags: nil,
	})
	assert.Equal(t, "○ Pasta\nCuisine · example.com\n-\nhttps://www.example.com/p", out)
}
