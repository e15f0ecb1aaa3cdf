package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"linkshelf/internal/domain"
	"linkshelf/internal/metadata"
	"linkshelf/internal/platform"
	"linkshelf/internal/prompt"
)

// Timeout bounds a single analysis.
const Timeout = 20 * time.Second

var errTimeout = errors.New("analysis timed out")

// Generator issues one structured-output completion and returns the raw JSON text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SetupRequired is returned when no generator is configured.
func SetupRequired() domain.Analysis {
	return domain.Analysis{
		Title:    "Lien (Clé API manquante)",
		Summary:  "Veuillez configurer votre clé API Gemini (GEMINI_API_KEY).",
		Category: domain.Uncategorized,
		Tags:     []string{"setup-required"},
	}
}

// Fallback is returned whenever an analysis cannot complete.
func Fallback() domain.Analysis {
	return domain.Analysis{
		Title:    "Nouveau Lien",
		Summary:  "L'analyse automatique n'a pas pu être complétée.",
		Category: domain.Uncategorized,
		Tags:     []string{"link"},
	}
}

// Analyzer turns a URL into a draft Analysis. It never returns an error:
// every failure degrades to SetupRequired or Fallback.
type Analyzer struct {
	gen      Generator
	enricher metadata.Enricher
	timeout  time.Duration
	log      logrus.FieldLogger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTimeout overrides the analysis timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithEnricher sets the metadata source used for video links.
func WithEnricher(e metadata.Enricher) Option {
	return func(a *Analyzer) { a.enricher = e }
}

// New creates an Analyzer. A nil gen means no credential is configured.
func New(gen Generator, logger logrus.FieldLogger, opts ...Option) *Analyzer {
	a := &Analyzer{
		gen:     gen,
		timeout: Timeout,
		log:     logger.WithField("component", "analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether a generator is configured.
func (a *Analyzer) Enabled() bool {
	return a.gen != nil
}

// Analyze classifies and summarizes rawURL, preferring the given categories.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string, existingCategories []string) domain.Analysis {
	log := a.log.WithField("url", rawURL)

	if a.gen == nil {
		log.Warn("No analysis credential configured, returning setup placeholder")
		return SetupRequired()
	}

	deadline := time.Now().Add(a.timeout)

	result, err := a.analyze(ctx, deadline, rawURL, existingCategories)
	if err != nil {
		log.WithError(err).Error("Link analysis failed, returning fallback")
		return Fallback()
	}

	log.WithFields(logrus.Fields{
		"category": result.Category,
		"tags":     result.Tags,
	}).Info("Link analyzed")
	return result
}

func (a *Analyzer) analyze(ctx context.Context, deadline time.Time, rawURL string, existing []string) (domain.Analysis, error) {
	p := platform.Detect(rawURL)
	in := prompt.Input{
		URL:             rawURL,
		PlatformContext: p.Context(),
		Categories:      filterCategories(existing),
	}

	if p == platform.VideoHosting && a.enricher != nil {
		enrichCtx, cancel := context.WithDeadline(ctx, deadline)
		v, ok := a.enricher.Fetch(enrichCtx, rawURL)
		cancel()
		if ok {
			in.Video = &prompt.Video{Title: v.Title, Author: v.Author}
		}
	}

	text, err := a.generate(ctx, time.Until(deadline), prompt.Build(in))
	if err != nil {
		return domain.Analysis{}, err
	}

	parsed, err := parse(text)
	if err != nil {
		return domain.Analysis{}, err
	}
	return normalize(parsed), nil
}

type outcome struct {
	text string
	err  error
}

// race delivers the first outcome it is given; later ones are dropped.
type race struct {
	once sync.Once
	ch   chan outcome
}

func newRace() *race {
	return &race{ch: make(chan outcome, 1)}
}

func (r *race) settle(o outcome) {
	r.once.Do(func() { r.ch <- o })
}

// generate runs the generator against a timer. The request itself is not
// cancelled when the timer wins; its result is simply discarded.
func (a *Analyzer) generate(ctx context.Context, budget time.Duration, instruction string) (string, error) {
	r := newRace()

	timer := time.AfterFunc(budget, func() {
		r.settle(outcome{err: errTimeout})
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		r.settle(outcome{err: ctx.Err()})
	})
	defer stop()

	go func() {
		text, err := a.gen.Generate(ctx, instruction)
		r.settle(outcome{text: text, err: err})
	}()

	o := <-r.ch
	if o.err != nil {
		return "", fmt.Errorf("failed to generate analysis: %w", o.err)
	}
	return o.text, nil
}

type payload struct {
	Title    *string   `json:"title"`
	Summary  *string   `json:"summary"`
	Category *string   `json:"category"`
	Tags     *[]string `json:"tags"`
}

func parse(text string) (domain.Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Analysis{}, errors.New("empty model response")
	}

	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return domain.Analysis{}, fmt.Errorf("failed to decode model response: %w", err)
	}
	if p.Title == nil || p.Summary == nil || p.Category == nil || p.Tags == nil {
		return domain.Analysis{}, errors.New("model response is missing required fields")
	}

	return domain.Analysis{
		Title:    *p.Title,
		Summary:  *p.Summary,
		Category: *p.Category,
		Tags:     *p.Tags,
	}, nil
}

func normalize(r domain.Analysis) domain.Analysis {
	r.Title = strings.TrimSpace(r.Title)
	r.Summary = strings.TrimSpace(r.Summary)
	r.Category = domain.CapitalizeCategory(strings.TrimSpace(r.Category))
	if r.Category == "" {
		r.Category = domain.Uncategorized
	}
	r.Tags = domain.NormalizeTags(r.Tags)
	return r
}

// filterCategories drops empty and sentinel values and deduplicates the rest.
func filterCategories(categories []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" || c == domain.Uncategorized {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
