// Package server serves the ButtonStudio application: the studio page, the
// counter and audio APIs, the manifest views and the live-update websocket.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/conneroisu/buttonstudio/internal/build"
	"github.com/conneroisu/buttonstudio/internal/config"
	"github.com/conneroisu/buttonstudio/internal/logging"
	"github.com/conneroisu/buttonstudio/internal/manifest"
	"github.com/conneroisu/buttonstudio/internal/monitoring"
	"github.com/conneroisu/buttonstudio/internal/studio"
	"github.com/conneroisu/buttonstudio/internal/watcher"
)

// Message types pushed over the websocket.
const (
	MessageCounter       = "counter"
	MessageAudio         = "audio"
	MessageReload        = "reload"
	MessageManifestError = "manifest_error"
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string             `json:"type"`
	ID        string             `json:"id,omitempty"`
	Value     *int               `json:"value,omitempty"`
	Status    studio.AudioStatus `json:"status,omitempty"`
	Content   string             `json:"content,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Options tunes New.
type Options struct {
	// Dev enables the file watcher and manifest regeneration.
	Dev     bool
	Logger  logging.Logger
	Metrics *monitoring.Metrics
}

// Server is the ButtonStudio HTTP server.
type Server struct {
	config   *config.Config
	dev      bool
	logger   logging.Logger
	metrics  *monitoring.Metrics
	studio   *studio.Studio
	pipeline *build.Pipeline
	hub      *Hub
	router   chi.Router
	watcher  *watcher.FileWatcher

	serverMutex sync.RWMutex
	httpServer  *http.Server
	listenAddr  string
	cancel      context.CancelFunc
	closed      bool
	drainCtx    context.Context
	drained     chan error

	shutdownOnce sync.Once
}

// New creates a server for cfg.
func New(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	s := &Server{
		config:  cfg,
		dev:     opts.Dev,
		logger:  logger.WithComponent("server"),
		metrics: metrics,
		studio:  studio.New(cfg.Studio.CounterStart),
	}

	// Outside dev mode the manifest on disk is left alone; the views only
	// reflect what a regeneration would produce.
	s.pipeline = build.NewPipeline(build.Options{
		Root:         cfg.Project.Root,
		ManifestPath: cfg.ManifestPath(),
		Ignore:       cfg.Project.Ignore,
		DryRun:       !opts.Dev,
		Logger:       logger,
		Metrics:      metrics,
	})
	s.hub = NewHub(logger, metrics)
	s.router = s.buildRouter()

	if opts.Dev && cfg.Development.HotReload {
		fw, err := watcher.NewFileWatcher(cfg.Development.Debounce, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		s.watcher = fw
	}

	return s, nil
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Studio exposes the state the handlers mutate.
func (s *Server) Studio() *studio.Studio {
	return s.studio
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleHome)
	r.Get("/manifest", s.handleManifestPage)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", s.metrics.Handler())
	r.Handle("/static/*", staticHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/manifest", s.handleManifestJSON)
		r.Route("/counter/{id}", func(r chi.Router) {
			r.Get("/", s.handleCounterGet)
			r.Post("/increment", s.handleCounterStep(directionUp))
			r.Post("/decrement", s.handleCounterStep(directionDown))
		})
		r.Get("/audio", s.handleAudioGet)
		r.Post("/audio/toggle", s.handleAudioToggle)
	})

	r.NotFound(s.handleNotFound)

	return r
}

// allowedOrigins lists the origins accepted for CORS and websocket
// upgrades: the configured ones plus the server's own address.
func (s *Server) allowedOrigins() []string {
	origins := append([]string(nil), s.config.Server.AllowedOrigins...)
	port := s.config.Server.Port
	if port == 0 {
		return append(origins, "http://localhost:*", "http://127.0.0.1:*")
	}
	return append(origins,
		fmt.Sprintf("http://%s:%d", s.config.Server.Host, port),
		fmt.Sprintf("http://localhost:%d", port),
		fmt.Sprintf("http://127.0.0.1:%d", port),
	)
}

// shutdownGrace bounds how long a cancelled Start waits for open requests.
const shutdownGrace = 5 * time.Second

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called. Start after Shutdown returns nil without serving.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		cancel()
		return err
	}

	s.serverMutex.Lock()
	if s.closed {
		s.serverMutex.Unlock()
		cancel()
		_ = listener.Close()
		return nil
	}
	s.cancel = cancel
	s.listenAddr = listener.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := s.httpServer
	drained := make(chan error, 1)
	s.drained = drained
	s.serverMutex.Unlock()

	go s.hub.Run(ctx)
	go s.forwardStudioEvents(ctx)
	// The only caller of server.Shutdown; Shutdown hands over its ctx.
	go func() {
		<-ctx.Done()
		s.serverMutex.RLock()
		shutdownCtx := s.drainCtx
		s.serverMutex.RUnlock()
		if shutdownCtx == nil {
			var done context.CancelFunc
			shutdownCtx, done = context.WithTimeout(context.Background(), shutdownGrace)
			defer done()
		}
		drained <- server.Shutdown(shutdownCtx)
	}()

	if s.dev {
		s.pipeline.AddCallback(s.handleBuildResult)
	}
	s.pipeline.Run(ctx)

	if s.watcher != nil {
		s.setupFileWatcher(ctx)
	}

	s.logger.Info(ctx, "Server listening", "addr", s.listenAddr, "dev", s.dev)

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Addr returns the address the server listens on once Start has bound it.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.listenAddr
}

func (s *Server) setupFileWatcher(ctx context.Context) {
	s.watcher.AddFilter(watcher.SourceFilter)
	s.watcher.AddFilter(watcher.NoTestFilter)
	s.watcher.AddFilter(watcher.NoGitFilter)
	s.watcher.AddFilter(watcher.NoNodeModulesFilter)
	s.watcher.AddHandler(s.handleFileChange(ctx))

	root := s.config.Project.Root
	// The root itself is watched so routes/ or islands/ created later are
	// picked up.
	if err := s.watcher.AddPath(root); err != nil {
		s.logger.Warn(ctx, err, "Failed to watch project root", "path", root)
	}
	for _, dir := range []string{manifest.RoutesDir, manifest.IslandsDir} {
		path := filepath.Join(root, dir)
		if err := s.watcher.AddRecursive(path); err != nil {
			s.logger.Warn(ctx, err, "Failed to watch path", "path", path)
		}
	}

	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to start file watcher")
	}
}

// handleFileChange regenerates the manifest when a batch touches routes/ or
// islands/. The pipeline callback broadcasts the outcome.
func (s *Server) handleFileChange(ctx context.Context) watcher.ChangeHandler {
	return func(events []watcher.ChangeEvent) error {
		relevant := false
		for _, event := range events {
			if s.inProjectDirs(event.Path) {
				s.logger.Debug(ctx, "File changed", "path", event.Path, "type", event.Type.String())
				relevant = true
			}
		}
		if !relevant {
			return nil
		}

		s.pipeline.Run(ctx)
		return nil
	}
}

func (s *Server) inProjectDirs(path string) bool {
	rel, err := filepath.Rel(s.config.Project.Root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, dir := range []string{manifest.RoutesDir, manifest.IslandsDir} {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}

func (s *Server) handleBuildResult(result build.Result) {
	if result.Error != nil {
		s.hub.Broadcast(UpdateMessage{
			Type:      MessageManifestError,
			Content:   result.Error.Error(),
			Timestamp: time.Now(),
		})
		return
	}
	s.hub.Broadcast(UpdateMessage{Type: MessageReload, Timestamp: time.Now()})
}

// forwardStudioEvents relays counter and audio changes to every client.
func (s *Server) forwardStudioEvents(ctx context.Context) {
	events := s.studio.Watch()
	defer s.studio.UnWatch(events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(messageFromEvent(event))
		}
	}
}

func messageFromEvent(event studio.Event) UpdateMessage {
	msg := UpdateMessage{Timestamp: event.Timestamp}
	switch event.Type {
	case studio.EventCounter:
		value := event.Value
		msg.Type = MessageCounter
		msg.ID = event.ID
		msg.Value = &value
	case studio.EventAudio:
		msg.Type = MessageAudio
		msg.Status = event.Status
	}
	return msg
}

// Shutdown gracefully shuts down the server and cleans up resources. Only
// the first call does any work.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "Failed to stop file watcher")
			}
		}

		s.serverMutex.Lock()
		s.closed = true
		s.drainCtx = ctx
		cancel := s.cancel
		drained := s.drained
		s.serverMutex.Unlock()

		// Stops the hub, which closes every websocket connection, and
		// drains the HTTP server.
		if cancel != nil {
			cancel()
		}

		if drained != nil {
			select {
			case shutdownErr = <-drained:
			case <-ctx.Done():
				shutdownErr = ctx.Err()
			}
		}
	})

	return shutdownErr
}
