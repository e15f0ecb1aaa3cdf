package domain

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Uncategorized is the sentinel category used when nothing better is known.
const Uncategorized = "Non classé"

// Link represents a saved bookmark owned by a single user.
type Link struct {
	// ID is assigned by the store at creation and never reused.
	ID string `json:"id"`

	// URL is the access target of the bookmark.
	URL string `json:"url"`

	Title   string `json:"title"`
	Summary string `json:"summary"`

	// Category is a free-text label; any string is valid.
	Category string `json:"category"`

	// Tags are lowercase, hyphenated and unique. Order is kept for display.
	Tags []string `json:"tags"`

	// IsRead is toggled by the user and false at creation.
	IsRead bool `json:"isRead"`

	// CreatedAt is milliseconds since epoch. It is the default sort key.
	CreatedAt int64 `json:"createdAt"`
}

// Analysis is the AI-derived draft for a new Link. It is never persisted on its own.
type Analysis struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// LinkUpdate carries a partial update. Nil fields are left untouched.
type LinkUpdate struct {
	Title     *string  `json:"title,omitempty"`
	Summary   *string  `json:"summary,omitempty"`
	Category  *string  `json:"category,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	IsRead    *bool    `json:"isRead,omitempty"`
	CreatedAt *int64   `json:"createdAt,omitempty"`
}

// Empty reports whether the update sets no field at all.
func (u LinkUpdate) Empty() bool {
	return u.Title == nil && u.Summary == nil && u.Category == nil &&
		u.Tags == nil && u.IsRead == nil && u.CreatedAt == nil
}

// Profile is the identity context handed to us by the authentication layer.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// LocalUser is the guest identity used when no authentication is configured.
var LocalUser = Profile{
	ID:    "local-user-id",
	Name:  "Local Guest",
	Email: "local@linkshelf.internal",
}

// NowMillis returns t as milliseconds since epoch.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// Prepare enforces the persistence invariants on l: a non-empty category,
// normalized unique tags and a creation timestamp.
func (l *Link) Prepare(now time.Time) {
	l.URL = strings.TrimSpace(l.URL)
	l.Category = strings.TrimSpace(l.Category)
	if l.Category == "" {
		l.Category = Uncategorized
	}
	l.Tags = NormalizeTags(l.Tags)
	if l.CreatedAt == 0 {
		l.CreatedAt = NowMillis(now)
	}
}

// Apply copies every field set in u onto l.
func (l *Link) Apply(u LinkUpdate) {
	if u.Title != nil {
		l.Title = *u.Title
	}
	if u.Summary != nil {
		l.Summary = *u.Summary
	}
	if u.Category != nil {
		l.Category = strings.TrimSpace(*u.Category)
		if l.Category == "" {
			l.Category = Uncategorized
		}
	}
	if u.Tags != nil {
		l.Tags = NormalizeTags(u.Tags)
	}
	if u.IsRead != nil {
		l.IsRead = *u.IsRead
	}
	if u.CreatedAt != nil {
		l.CreatedAt = *u.CreatedAt
	}
}

// NormalizeTag lowercases and trims tag and joins inner whitespace with a
// hyphen. Any Unicode space counts, including no-break spaces.
func NormalizeTag(tag string) string {
	return strings.Join(strings.Fields(strings.ToLower(tag)), "-")
}

// NormalizeTags normalizes every tag, dropping empties and duplicates while
// keeping first-seen order. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// CapitalizeCategory upper-cases the first rune of category.
func CapitalizeCategory(category string) string {
	r, size := utf8.DecodeRuneInString(category)
	if r == utf8.RuneError {
		return category
	}
	return string(unicode.ToUpper(r)) + category[size:]
}
