package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultEndpoint is the public YouTube oEmbed lookup.
const DefaultEndpoint = "https://www.youtube.com/oembed"

// Video is the public embed metadata of a video.
type Video struct {
	Title  string
	Author string
}

// Enricher fetches auxiliary metadata for a URL.
type Enricher interface {
	// Fetch returns the video metadata for rawURL. The boolean is false when
	// nothing could be retrieved; that is an expected outcome, not an error.
	Fetch(ctx context.Context, rawURL string) (Video, bool)
}

// OEmbedClient implements Enricher against an oEmbed endpoint.
type OEmbedClient struct {
	endpoint string
	client   *http.Client
	log      logrus.FieldLogger
}

// NewOEmbedClient creates a client for endpoint. An empty endpoint uses
// DefaultEndpoint and a nil client uses http.DefaultClient.
func NewOEmbedClient(endpoint string, client *http.Client, logger logrus.FieldLogger) *OEmbedClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OEmbedClient{
		endpoint: endpoint,
		client:   client,
		log:      logger.WithField("component", "oembed"),
	}
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// Fetch looks up rawURL. Every failure is logged and reported as (Video{}, false).
func (c *OEmbedClient) Fetch(ctx context.Context, rawURL string) (Video, bool) {
	log := c.log.WithField("url", rawURL)

	v, err := c.fetch(ctx, rawURL)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch video metadata")
		return Video{}, false
	}
	log.WithField("title", v.Title).Debug("Fetched video metadata")
	return v, true
}

func (c *OEmbedClient) fetch(ctx context.Context, rawURL string) (Video, error) {
	q := url.Values{}
	q.Set("url", rawURL)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Video{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Video{}, fmt.Errorf("failed to query oembed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Video{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Video{}, fmt.Errorf("failed to decode oembed payload: %w", err)
	}
	if strings.TrimSpace(body.Title) == "" {
		return Video{}, fmt.Errorf("oembed payload has no title")
	}

	return Video{
		Title:  strings.TrimSpace(body.Title),
		Author: strings.TrimSpace(body.AuthorName),
	}, nil
}
