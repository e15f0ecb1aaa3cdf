package bot

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"linkshelf/internal/collection"
	"linkshelf/internal/domain"
	"linkshelf/internal/ingest"
)

// Callback data prefixes. Telegram caps callback data at 64 bytes.
const (
	cbSave   = "draft:save"
	cbCancel = "draft:cancel"
	cbRead   = "read:"
	cbDelete = "del:"
)

// maxListed bounds how many links one listing command sends.
const maxListed = 20

// parseCommand splits "/cmd@botname arg..." into the lowercased command and
// its trimmed argument. ok is false for text that is not a command.
func parseCommand(text string) (cmd, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(arg), true
}

// splitTags parses "a, b, c" into raw tags.
func splitTags(arg string) []string {
	out := []string{}
	for _, t := range strings.Split(arg, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return "-"
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = "#" + t
	}
	return strings.Join(parts, " ")
}

func formatDraft(d ingest.Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.Analysis.Title)
	fmt.Fprintf(&b, "%s\n\n", d.Analysis.Summary)
	fmt.Fprintf(&b, "Category: %s\n", d.Analysis.Category)
	fmt.Fprintf(&b, "Tags: %s\n", formatTags(d.Analysis.Tags))
	fmt.Fprintf(&b, "%s\n\n", d.URL)
	b.WriteString("Edit with /title, /category or /tags before saving.")
	return b.String()
}

func formatLink(l domain.Link) string {
	mark := "○"
	if l.IsRead {
		mark = "●"
	}
	return fmt.Sprintf("%s %s\n%s · %s\n%s\n%s", mark, l.Title, l.Category, collection.SourceDomain(l.URL), formatTags(l.Tags), l.URL)
}

func formatTagCounts(counts []collection.TagCount) string {
	lines := make([]string, len(counts))
	for i, c := range counts {
		lines[i] = fmt.Sprintf("#%s (%d)", c.Tag, c.Count)
	}
	return strings.Join(lines, "\n")
}

func draftKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "Save", CallbackData: cbSave},
			{Text: "Cancel", CallbackData: cbCancel},
		}},
	}
}

func linkKeyboard(l domain.Link) *models.InlineKeyboardMarkup {
	toggle := "Mark read"
	if l.IsRead {
		toggle = "Mark unread"
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: toggle, CallbackData: cbRead + l.ID},
			{Text: "Delete", CallbackData: cbDelete + l.ID},
		}},
	}
}

// listFilter maps a listing command and its argument to a collection filter.
func listFilter(cmd, arg string) (collection.Filter, error) {
	switch cmd {
	case "/list":
		st, err := collection.ParseState(arg)
		if err != nil {
			return collection.Filter{}, err
		}
		if st == collection.Category || st == collection.Source {
			return collection.Filter{}, fmt.Errorf("use /cat or /src for %s views", st)
		}
		return collection.Filter{State: st}, nil
	case "/cat":
		return collection.Filter{State: collection.Category, Category: arg}, nil
	case "/src":
		return collection.Filter{State: collection.Source, Source: strings.ToLower(arg)}, nil
	case "/tag":
		return collection.Filter{State: collection.All, Tag: strings.TrimPrefix(arg, "#")}, nil
	case "/search":
		if arg == "" {
			return collection.Filter{}, fmt.Errorf("usage: /search <text>")
		}
		return collection.Filter{Query: arg}, nil
	}
	return collection.Filter{}, fmt.Errorf("unknown command %s", cmd)
}

const helpText = `Send me a link and I'll draft a title, summary, category and tags for it.

Before saving a draft:
/title <text>, /category <text>, /tags a, b, c

Browsing:
/list [all|unread|read]
/cat <category>, /src <domain>, /tag <tag>
/search <text>
/categories, /sources, /tags`
