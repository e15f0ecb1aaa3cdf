// Package ingest runs the submit, review and save flow for new links.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"linkshelf/internal/collection"
	"linkshelf/internal/domain"
	"linkshelf/internal/storage"
)

var (
	// ErrNoDraft is returned when a user confirms or edits without a pending draft.
	ErrNoDraft = errors.New("no pending link draft")
	// ErrInvalidURL is returned for submissions that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrNotFound is returned when a link id does not exist for the user.
	ErrNotFound = errors.New("link not found")
)

// Analyzer produces a draft analysis for a URL. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string, existingCategories []string) domain.Analysis
}

// Draft is an analyzed URL awaiting user confirmation.
type Draft struct {
	URL      string          `json:"url"`
	Analysis domain.Analysis `json:"analysis"`
}

// Edit changes draft fields before confirmation. Nil fields are kept.
type Edit struct {
	Title    *string
	Summary  *string
	Category *string
	Tags     []string
}

// Service wires the analyzer to the link store.
type Service struct {
	analyzer Analyzer
	repo     storage.Repository
	log      logrus.FieldLogger
	now      func() time.Time

	mu     sync.Mutex
	drafts map[string]Draft
}

// NewService creates an ingestion service.
func NewService(analyzer Analyzer, repo storage.Repository, logger logrus.FieldLogger) *Service {
	return &Service{
		analyzer: analyzer,
		repo:     repo,
		log:      logger.WithField("component", "ingest"),
		now:      time.Now,
		drafts:   make(map[string]Draft),
	}
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURL returns the first http(s) URL found in free text.
func ExtractURL(text string) (string, bool) {
	m := urlPattern.FindString(text)
	return m, m != ""
}

// ValidateURL reports whether raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// Analyze analyzes rawURL with the user's categories as guidance and keeps the
// result as the user's pending draft, replacing any earlier one.
func (s *Service) Analyze(ctx context.Context, userID, rawURL string) (Draft, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := ValidateURL(rawURL); err != nil {
		return Draft{}, err
	}

	d := Draft{
		URL:      rawURL,
		Analysis: s.analyzer.Analyze(ctx, rawURL, s.Categories(ctx, userID)),
	}

	s.mu.Lock()
	s.drafts[userID] = d
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"user_id": userID, "url": rawURL}).Debug("Draft ready for review")
	return d, nil
}

// Categories returns the user's distinct categories. Read errors yield none.
func (s *Service) Categories(ctx context.Context, userID string) []string {
	links, err := s.repo.List(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Could not load categories")
		return nil
	}
	return collection.Categories(links)
}

// Draft returns the user's pending draft.
func (s *Service) Draft(userID string) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[userID]
	return d, ok
}

// EditDraft changes the pending draft.
func (s *Service) EditDraft(userID string, e Edit) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[userID]
	if !ok {
		return Draft{}, ErrNoDraft
	}
	if e.Title != nil {
		d.Analysis.Title = strings.TrimSpace(*e.Title)
	}
	if e.Summary != nil {
		d.Analysis.Summary = strings.TrimSpace(*e.Summary)
	}
	if e.Category != nil {
		d.Analysis.Category = strings.TrimSpace(*e.Category)
	}
	if e.Tags != nil {
		d.Analysis.Tags = domain.NormalizeTags(e.Tags)
	}
	s.drafts[userID] = d
	return d, nil
}

// Discard drops the pending draft, if any.
func (s *Service) Discard(userID string) {
	s.mu.Lock()
	delete(s.drafts, userID)
	s.mu.Unlock()
}

// Confirm persists the pending draft. On a store error the draft is kept so
// the user can try again.
func (s *Service) Confirm(ctx context.Context, userID string) (string, error) {
	d, ok := s.Draft(userID)
	if !ok {
		return "", ErrNoDraft
	}

	id, err := s.Save(ctx, userID, domain.Link{
		URL:      d.URL,
		Title:    d.Analysis.Title,
		Summary:  d.Analysis.Summary,
		Category: d.Analysis.Category,
		Tags:     d.Analysis.Tags,
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if cur, ok := s.drafts[userID]; ok && cur.URL == d.URL {
		delete(s.drafts, userID)
	}
	s.mu.Unlock()
	return id, nil
}

// Save stores a new unread link created now.
func (s *Service) Save(ctx context.Context, userID string, link domain.Link) (string, error) {
	if err := ValidateURL(link.URL); err != nil {
		return "", err
	}
	link.IsRead = false
	link.CreatedAt = domain.NowMillis(s.now())

	id, err := s.repo.Add(ctx, userID, link)
	if err != nil {
		return "", fmt.Errorf("failed to save link: %w", err)
	}
	return id, nil
}

// List returns the user's links matching f.
func (s *Service) List(ctx context.Context, userID string, f collection.Filter) ([]domain.Link, error) {
	links, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return collection.Apply(links, f), nil
}

// Update applies a partial update to a link.
func (s *Service) Update(ctx context.Context, userID, id string, u domain.LinkUpdate) error {
	if err := s.repo.Update(ctx, userID, id, u); err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	return nil
}

// ToggleRead flips the read state of a link and returns the new state.
func (s *Service) ToggleRead(ctx context.Context, userID, id string) (bool, error) {
	links, err := s.repo.List(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, l := range links {
		if l.ID == id {
			read := !l.IsRead
			if err := s.Update(ctx, userID, id, domain.LinkUpdate{IsRead: &read}); err != nil {
				return false, err
			}
			return read, nil
		}
	}
	return false, ErrNotFound
}

// Delete removes a link. Failures are logged only.
func (s *Service) Delete(ctx context.Context, userID, id string) {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "link_id": id}).Error("Delete failed")
	}
}

// Subscribe forwards to the link store's live feed.
func (s *Service) Subscribe(ctx context.Context, userID string, fn func([]domain.Link)) (*storage.Subscription, error) {
	return s.repo.Subscribe(ctx, userID, fn)
}
