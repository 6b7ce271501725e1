package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/tdex-network/tdex-feeder/internal/core/application"
	"github.com/tdex-network/tdex-feeder/internal/interfaces"
)

const (
	defaultJournalLimit = 100
	shutdownTimeout     = 5 * time.Second
)

type service struct {
	server *http.Server
}

func NewService(feedSvc application.FeedService, port int) interfaces.Service {
	return &service{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(feedSvc),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *service) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()
	log.Infof("http interface is listening on %s", s.server.Addr)
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop http interface")
		return
	}
	log.Info("http interface stopped")
}

// NewRouter returns the handler serving the status endpoints and the
// prometheus metrics.
func NewRouter(feedSvc application.FeedService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := handler{feedSvc}
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/feeds", h.listFeeds)
	v1.GET("/feeds/:type/journal", h.listJournal)
	return r
}

type handler struct {
	feedSvc application.FeedService
}

func (h handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h handler) listFeeds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"feeds": h.feedSvc.ListFeeds(c.Request.Context())})
}

func (h handler) listJournal(c *gin.Context) {
	limit := defaultJournalLimit
	if str := c.Query("limit"); len(str) > 0 {
		l, err := strconv.Atoi(str)
		if err != nil || l <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
			return
		}
		limit = l
	}

	feedType := c.Param("type")
	entries, err := h.feedSvc.ListJournal(c.Request.Context(), feedType, limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, application.ErrFeedNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"feed": feedType, "entries": entries})
}
