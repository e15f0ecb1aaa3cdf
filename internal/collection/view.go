// Package collection derives filtered views over a user's links.
package collection

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"linkshelf/internal/domain"
)

// UnknownSource groups links whose URL has no parsable host.
const UnknownSource = "inconnu"

// State is the top-level view selector.
type State string

const (
	All      State = "all"
	Unread   State = "unread"
	Read     State = "read"
	Category State = "category"
	Source   State = "source"
)

// ParseState maps a user-supplied name to a State. Empty means All.
func ParseState(s string) (State, error) {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return All, nil
	case All, Unread, Read, Category, Source:
		return st, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

// Filter describes the active view.
type Filter struct {
	State State
	// Category applies when State is Category; empty matches every link.
	Category string
	// Source applies when State is Source; empty matches every link.
	Source string
	// Tag, when set, must match one of the link's tags (case-insensitive).
	Tag string
	// Query, when set, overrides every other predicate.
	Query string
}

// Apply returns the links matching f. links is never modified.
func Apply(links []domain.Link, f Filter) []domain.Link {
	out := make([]domain.Link, 0, len(links))
	for _, l := range links {
		if f.matches(l) {
			out = append(out, l)
		}
	}
	return out
}

func (f Filter) matches(l domain.Link) bool {
	if q := strings.ToLower(f.Query); q != "" {
		return matchesQuery(l, q)
	}

	if f.Tag != "" && !hasTag(l, f.Tag) {
		return false
	}

	switch f.State {
	case Category:
		return f.Category == "" || l.Category == f.Category
	case Source:
		return f.Source == "" || SourceDomain(l.URL) == f.Source
	case Unread:
		return !l.IsRead
	case Read:
		return l.IsRead
	default:
		return true
	}
}

func matchesQuery(l domain.Link, q string) bool {
	if strings.Contains(strings.ToLower(l.Title), q) ||
		strings.Contains(strings.ToLower(l.Summary), q) ||
		strings.Contains(strings.ToLower(l.URL), q) {
		return true
	}
	for _, t := range l.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func hasTag(l domain.Link, tag string) bool {
	for _, t := range l.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// SourceDomain returns the URL host without a leading "www.".
func SourceDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return UnknownSource
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Categories returns the distinct categories, sorted.
func Categories(links []domain.Link) []string {
	return distinct(links, func(l domain.Link) string { return l.Category })
}

// Sources returns the distinct source domains, sorted.
func Sources(links []domain.Link) []string {
	return distinct(links, func(l domain.Link) string { return SourceDomain(l.URL) })
}

func distinct(links []domain.Link, key func(domain.Link) string) []string {
	seen := make(map[string]struct{}, len(links))
	out := []string{}
	for _, l := range links {
		k := key(l)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TagCount is a tag and the number of links carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagCounts returns every tag with its usage, most used first.
func TagCounts(links []domain.Link) []TagCount {
	counts := map[string]int{}
	for _, l := range links {
		for _, t := range l.Tags {
			counts[t]++
		}
	}

	out := make([]TagCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TagCount{Tag: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}
