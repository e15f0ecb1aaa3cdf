package storage

import (
	"strings"

	"github.com/lib/pq"

	"linkshelf/internal/domain"
)

// linkColumns lists the links table columns in scan order.
const linkColumns = "id, user_id, url, title, summary, category, tags, isread, createdat"

// linkRow is a links table row. Column names differ from the JSON shape of
// domain.Link (isread/createdat are lowercase, user_id is extra); toRow and
// fromRow are the only places that translate between the two.
type linkRow struct {
	ID        string
	UserID    string
	URL       string
	Title     string
	Summary   string
	Category  string
	Tags      []string
	IsRead    bool
	CreatedAt int64
}

func toRow(userID string, l domain.Link) linkRow {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return linkRow{
		ID:        l.ID,
		UserID:    userID,
		URL:       l.URL,
		Title:     l.Title,
		Summary:   l.Summary,
		Category:  l.Category,
		Tags:      tags,
		IsRead:    l.IsRead,
		CreatedAt: l.CreatedAt,
	}
}

func fromRow(r linkRow) domain.Link {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return domain.Link{
		ID:        r.ID,
		URL:       r.URL,
		Title:     r.Title,
		Summary:   r.Summary,
		Category:  r.Category,
		Tags:      tags,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}

// args returns the row values in linkColumns order.
func (r linkRow) args() []any {
	return []any{r.ID, r.UserID, r.URL, r.Title, r.Summary, r.Category, pq.Array(r.Tags), r.IsRead, r.CreatedAt}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (linkRow, error) {
	var r linkRow
	err := s.Scan(&r.ID, &r.UserID, &r.URL, &r.Title, &r.Summary, &r.Category, pq.Array(&r.Tags), &r.IsRead, &r.CreatedAt)
	return r, err
}

// updateColumns maps the fields set in u to column assignments, applying the
// same normalization as domain.Link.Apply.
func updateColumns(u domain.LinkUpdate) (cols []string, args []any) {
	if u.Title != nil {
		cols = append(cols, "title")
		args = append(args, *u.Title)
	}
	if u.Summary != nil {
		cols = append(cols, "summary")
		args = append(args, *u.Summary)
	}
	if u.Category != nil {
		c := strings.TrimSpace(*u.Category)
		if c == "" {
			c = domain.Uncategorized
		}
		cols = append(cols, "category")
		args = append(args, c)
	}
	if u.Tags != nil {
		cols = append(cols, "tags")
		args = append(args, pq.Array(domain.NormalizeTags(u.Tags)))
	}
	if u.IsRead != nil {
		cols = append(cols, "isread")
		args = append(args, *u.IsRead)
	}
	if u.CreatedAt != nil {
		cols = append(cols, "createdat")
		args = append(args, *u.CreatedAt)
	}
	return cols, args
}
