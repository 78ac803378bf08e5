// Package api exposes audits, restore, scheduled tasks and document writes over HTTP.
package api

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"snaptrail/audit"
	"snaptrail/document"
	"snaptrail/errors"
	"snaptrail/logging"
	"snaptrail/metrics"
	"snaptrail/requestctx"
	"snaptrail/task"
)

// Handler holds the services behind the HTTP routes.
type Handler struct {
	audits    *audit.Service
	tasks     *task.Service
	executor  *task.Executor
	documents *document.Pipeline
	planner   audit.IPlanner
	logger    logging.Logger
}

// Deps groups the collaborators of Handler. Documents and Planner are optional;
// without them the document routes are not mounted.
type Deps struct {
	Audits    *audit.Service
	Tasks     *task.Service
	Executor  *task.Executor
	Documents *document.Pipeline
	Planner   audit.IPlanner
	Logger    logging.Logger
}

// NewHandler builds a Handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Handler{
		audits:    deps.Audits,
		tasks:     deps.Tasks,
		executor:  deps.Executor,
		documents: deps.Documents,
		planner:   deps.Planner,
		logger:    logger.WithFields(logging.Component("api")),
	}
}

// Options configures the router.
type Options struct {
	// CORSOrigins lists allowed origins; empty disables CORS handling.
	CORSOrigins []string
	Mode        string
}

// NewRouter registers all routes on a fresh gin engine.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), h.requestMeta, h.accessLog)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/audits", h.ListAudits)
	r.GET("/audits/restorable", h.ListRestorable)
	r.GET("/audits/:id", h.GetAudit)
	r.POST("/restore", h.Restore)

	r.GET("/tasks", h.ListTasks)
	r.POST("/tasks", h.CreateTask)
	r.GET("/tasks/:id", h.GetTask)
	r.PUT("/tasks/:id", h.UpdateTask)
	r.DELETE("/tasks/:id", h.DeleteTask)
	r.POST("/tasks/:id/execute", h.ExecuteTask)

	if h.documents != nil {
		docs := r.Group("/documents/:type")
		docs.POST("", h.CreateDocument)
		docs.GET("/:id", h.GetDocument)
		docs.PUT("/:id", h.UpdateDocument)
		docs.DELETE("/:id", h.DeleteDocument)
		docs.POST("/:id/publish", h.PublishDocument)
		docs.POST("/:id/unpublish", h.UnpublishDocument)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": errors.ErrCodeNotFound, "message": "route not found"}})
	})
	return r
}

// NewHTTPHandler wraps the router with CORS when origins are configured.
func NewHTTPHandler(h *Handler, opts Options) http.Handler {
	router := NewRouter(h, opts)
	if len(opts.CORSOrigins) == 0 {
		return router
	}
	return cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestctx.HeaderUserID, requestctx.HeaderUserEmail, requestctx.HeaderUserName},
		AllowCredentials: true,
	}).Handler(router)
}

// requestMeta puts the caller's identity on the request context so captured
// mutations can be attributed.
func (h *Handler) requestMeta(c *gin.Context) {
	ctx := requestctx.WithMeta(c.Request.Context(), requestctx.FromRequest(c.Request))
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

func (h *Handler) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Debug(c.Request.Context(), "http request",
		logging.String("method", c.Request.Method),
		logging.String("path", c.FullPath()),
		logging.Int("status", c.Writer.Status()),
		logging.Duration("elapsed", time.Since(start)))
}

// fail writes err as a JSON error body with the status derived from its code.
func (h *Handler) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetErrorCode(err)
	msg := err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		msg = appErr.Message()
		if cause := appErr.Cause(); cause != nil {
			msg += ": " + cause.Error()
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed",
			logging.String("path", c.FullPath()), logging.Error(err))
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.fail(c, errors.Errorf(errors.ErrCodeInvalidInput, "invalid request body: %v", err))
}
