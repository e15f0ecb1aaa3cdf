// Package api exposes the link collection over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"linkshelf/internal/collection"
	"linkshelf/internal/domain"
	"linkshelf/internal/ingest"
)

// Server holds dependencies for the HTTP handlers.
type Server struct {
	svc    *ingest.Service
	log    logrus.FieldLogger
	router *gin.Engine
}

// NewServer builds the router. An empty jwtSecret serves every request as guest.
func NewServer(svc *ingest.Service, jwtSecret string, guest domain.Profile, logger logrus.FieldLogger) *Server {
	s := &Server{
		svc: svc,
		log: logger.WithField("component", "http_api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(jwtSecret, guest))
	{
		v1.GET("/me", s.me)
		v1.POST("/analyze", s.analyze)

		v1.GET("/links", s.listLinks)
		v1.POST("/links", s.createLink)
		v1.GET("/links/stream", s.streamLinks)
		v1.PATCH("/links/:id", s.updateLink)
		v1.DELETE("/links/:id", s.deleteLink)

		v1.GET("/categories", s.categories)
		v1.GET("/sources", s.sources)
		v1.GET("/tags", s.tags)
	}

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, c.MustGet(profileKey))
}

type analyzeRequest struct {
	URL string `json:"url" binding:"required,url"`
}

func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	d, err := s.svc.Analyze(c.Request.Context(), c.GetString(userIDKey), req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

func filterFromQuery(c *gin.Context) (collection.Filter, error) {
	state, err := collection.ParseState(c.Query("state"))
	if err != nil {
		return collection.Filter{}, err
	}
	f := collection.Filter{
		State:    state,
		Category: c.Query("category"),
		Source:   c.Query("source"),
		Tag:      c.Query("tag"),
		Query:    c.Query("q"),
	}
	// A bare category or source parameter selects that view.
	if f.State == collection.All {
		switch {
		case f.Category != "":
			f.State = collection.Category
		case f.Source != "":
			f.State = collection.Source
		}
	}
	return f, nil
}

func (s *Server) listLinks(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	links, err := s.svc.List(c.Request.Context(), c.GetString(userIDKey), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load links"})
		return
	}
	c.JSON(http.StatusOK, links)
}

type createLinkRequest struct {
	URL      string   `json:"url" binding:"required,url"`
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (s *Server) createLink(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	id, err := s.svc.Save(c.Request.Context(), c.GetString(userIDKey), domain.Link{
		URL:      req.URL,
		Title:    req.Title,
		Summary:  req.Summary,
		Category: req.Category,
		Tags:     req.Tags,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidURL) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updateLink(c *gin.Context) {
	var u domain.LinkUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := s.svc.Update(c.Request.Context(), c.GetString(userIDKey), c.Param("id"), u); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update link"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteLink(c *gin.Context) {
	s.svc.Delete(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	c.Status(http.StatusNoContent)
}

// streamLinks pushes the filtered collection as a "links" event on every change.
func (s *Server) streamLinks(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	updates := make(chan []domain.Link, 1)
	sub, err := s.svc.Subscribe(ctx, c.GetString(userIDKey), func(links []domain.Link) {
		// Deliveries are serialized; only the newest set matters.
		select {
		case <-updates:
		default:
		}
		updates <- links
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
		return
	}
	defer sub.Close()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case links := <-updates:
			c.SSEvent("links", collection.Apply(links, f))
			return true
		}
	})
}

func (s *Server) categories(c *gin.Context) {
	s.listDerived(c, func(links []domain.Link) any { return collection.Categories(links) })
}

func (s *Server) sources(c *gin.Context) {
	s.listDerived(c, func(links []domain.Link) any { return collection.Sources(links) })
}

func (s *Server) tags(c *gin.Context) {
	s.listDerived(c, func(links []domain.Link) any { return collection.TagCounts(links) })
}

func (s *Server) listDerived(c *gin.Context, derive func([]domain.Link) any) {
	links, err := s.svc.List(c.Request.Context(), c.GetString(userIDKey), collection.Filter{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load links"})
		return
	}
	c.JSON(http.StatusOK, derive(links))
}
