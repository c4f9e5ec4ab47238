// Package api exposes a Mesh over HTTP.
//
//	POST /v1/query   {"message": "..."}  with X-User-ID and Authorization: Bearer <token>
//	GET  /v1/tools   tool catalog grouped by category
//	GET  /healthz
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/journalmesh"
	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/logging"
	"github.com/hupe1980/journalmesh/tool"
	"github.com/hupe1980/journalmesh/workflow"
)

const callerKey = "journalmesh.caller"

// Querier is the part of journalmesh.Mesh the API serves.
type Querier interface {
	Query(ctx context.Context, message string, caller core.Caller) (*workflow.Result, error)
	Tools() map[tool.Category][]string
}

// Options configures the router.
type Options struct {
	Logger logging.Logger
	// RequestTimeout bounds a single query. Zero means no extra bound.
	RequestTimeout time.Duration
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Message string `json:"message" binding:"required"`
}

// ErrorResponse is returned for every failed request. Code is one of the
// stable external codes; provider error text is never exposed.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves the HTTP endpoints.
type Handler struct {
	mesh Querier
	opts Options
}

// NewHandler creates a Handler around mesh.
func NewHandler(mesh Querier, optFns ...func(o *Options)) *Handler {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Handler{mesh: mesh, opts: opts}
}

// NewRouter builds the gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.opts.Logger))

	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1")
	{
		v1.GET("/tools", h.Tools)
		v1.POST("/query", CallerMiddleware(), h.Query)
	}

	return r
}

// CallerMiddleware reads the end user from X-User-ID and the bearer token
// from Authorization.
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing X-User-ID header"})
			return
		}

		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
			return
		}

		c.Set(callerKey, core.Caller{UserID: userID, AuthToken: strings.TrimSpace(token)})
		c.Next()
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Tools lists the registry catalog.
func (h *Handler) Tools(c *gin.Context) {
	c.JSON(http.StatusOK, h.mesh.Tools())
}

// Query answers one user message.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	caller := c.MustGet(callerKey).(core.Caller)

	ctx := c.Request.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	res, err := h.mesh.Query(ctx, req.Message, caller)
	if err != nil {
		status, code := statusOf(err)
		h.opts.Logger.Warn("api.query.failed", "status", status, "code", code)
		c.JSON(status, ErrorResponse{Error: code})
		return
	}

	c.JSON(http.StatusOK, res)
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, journalmesh.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, journalmesh.ErrNoCaller):
		return http.StatusUnauthorized, "missing_caller"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	case errors.Is(err, core.ErrGateway):
		return http.StatusBadGateway, "gateway_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("api.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
