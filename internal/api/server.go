// Package api is the HTTP surface: JSON endpoints, the live websocket
// stream and the embedded viewer page.
package api

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/internal/observability"
	"github.com/signalsfoundry/railguard-simulator/internal/routing"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
)

const requestIDHeader = "X-Request-ID"

//go:embed assets/viewer.html
var viewerHTML []byte

// Deps are the collaborators the HTTP surface reads and mutates.
type Deps struct {
	Fleet   *state.FleetState
	Board   *state.OccupancyBoard
	Routes  *routing.Service
	Metrics *observability.SimCollector
	Log     logging.Logger
}

// Server owns the gin engine and the websocket hub.
type Server struct {
	fleet   *state.FleetState
	board   *state.OccupancyBoard
	routes  *routing.Service
	metrics *observability.SimCollector
	log     logging.Logger

	hub         *Hub
	engine      *gin.Engine
	unsubscribe func()
}

// NewServer wires the routes and subscribes the live stream to the fleet.
// Call Close to detach from the fleet.
func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		fleet:   deps.Fleet,
		board:   deps.Board,
		routes:  deps.Routes,
		metrics: deps.Metrics,
		log:     log,
		hub:     NewHub(log),
	}
	s.unsubscribe = s.fleet.Subscribe(s.hub.Publish)
	s.engine = s.routesEngine()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub exposes the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Close detaches the live stream from the fleet.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Server) routesEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestContext())
	if s.metrics != nil {
		r.Use(s.metrics.GinMiddleware())
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/", s.home)
	r.GET("/health", s.health)
	r.GET("/viewer", s.viewer)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	{
		api.GET("/state", s.getState)
		api.POST("/add_train", s.addTrain)
		api.GET("/trains/:id", s.getTrain)
		api.POST("/trains/:id/dispatch", s.dispatchTrain)

		api.GET("/path/:start/:end", s.getPath)
		api.GET("/track", s.getTrack)

		api.GET("/occupancy", s.getOccupancy)
		api.PUT("/occupancy", s.replaceOccupancy)
		api.POST("/occupancy", s.blockSegment)
		api.DELETE("/occupancy/:a/:b", s.releaseSegment)

		api.GET("/stream", s.stream)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

// requestContext attaches a request id and a request-scoped logger.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.log.With(
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, logging.RequestIDFromContext(ctx))
		c.Next()
	}
}

func requestLogger(c *gin.Context, fallback logging.Logger) (context.Context, logging.Logger) {
	ctx := c.Request.Context()
	return ctx, logging.FromContext(ctx, fallback)
}

// bindOptionalJSON decodes the body into v; an empty body leaves v as is.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) home(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte("<h1>RailGuard simulation API (live)</h1><p>Endpoints: /api/state, /api/path/start/end, /viewer</p>"))
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"trains": s.fleet.Len(),
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) viewer(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", viewerHTML)
}

func (s *Server) stream(c *gin.Context) {
	snap := s.fleet.Snapshot()
	s.hub.Serve(c.Writer, c.Request, &snap)
}
