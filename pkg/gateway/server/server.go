// Package server assembles the midas HTTP surface around one repair session.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vango-go/midas/pkg/gateway/config"
	"github.com/vango-go/midas/pkg/gateway/handlers"
	"github.com/vango-go/midas/pkg/gateway/lifecycle"
	"github.com/vango-go/midas/pkg/gateway/mw"
	"github.com/vango-go/midas/pkg/gateway/ratelimit"
	"github.com/vango-go/midas/pkg/gateway/upstream"
	"github.com/vango-go/midas/pkg/repair/archive"
	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/diagnosis"
	"github.com/vango-go/midas/pkg/repair/feed"
	"github.com/vango-go/midas/pkg/repair/history"
	"github.com/vango-go/midas/pkg/repair/metrics"
	"github.com/vango-go/midas/pkg/repair/overlay"
	"github.com/vango-go/midas/pkg/repair/session"
)

// Components are the collaborators a Server routes to. Only Session is
// required; routes for nil components answer 404 not_configured.
type Components struct {
	Session   *session.Session
	Window    *overlay.Window
	Loop      *overlay.Loop
	Camera    camera.Source
	Diagnoser handlers.Diagnoser
	History   history.Store
	Hub       *feed.Hub
	Metrics   *metrics.Metrics

	// Limiter throttles turns, diagnoses and feed connections per client.
	// Nil disables limiting.
	Limiter *ratelimit.Limiter

	Checks []handlers.ReadyCheck

	// Closers run in reverse order on Close.
	Closers []func() error

	AllowedOrigins []string
	MaxBodyBytes   int64
	HandlerTimeout time.Duration
}

type Server struct {
	c         Components
	logger    *slog.Logger
	mux       *http.ServeMux
	lifecycle *lifecycle.Lifecycle

	closeOnce sync.Once
	closeErr  error
}

// New wires routes over already-built components.
func New(c Components, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New("midas")
	}
	s := &Server{
		c:         c,
		logger:    logger,
		mux:       http.NewServeMux(),
		lifecycle: lifecycle.New(),
	}
	s.routes()
	return s
}

// Build constructs every component cfg and profile enable and returns a
// server over them. On error, anything already opened is closed.
func Build(ctx context.Context, cfg config.Config, profile config.Profile, logger *slog.Logger) (_ *Server, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func() error
	defer func() {
		if err != nil {
			runClosers(closers, logger)
		}
	}()

	m := metrics.New("midas")
	f := upstream.Factory{Config: cfg, HTTPClient: newHTTPClient(), Logger: logger}

	engine, err := f.Chat(ctx)
	if err != nil {
		return nil, err
	}
	pipeline, voiceClosers, err := f.Voice(ctx)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() error { return upstream.CloseAll(voiceClosers) })

	cam := f.Camera()
	if cam == nil {
		return nil, errors.New("MIDAS_CAMERA_URL or MIDAS_CAMERA_FILE must be set")
	}

	style, err := profile.Style()
	if err != nil {
		return nil, err
	}
	extractor, err := profile.Extractor()
	if err != nil {
		return nil, err
	}
	speech := profile.SpeechContext()

	window := overlay.NewWindow(style)
	hub := feed.NewHub(logger)
	hub.CheckOrigin = mw.SameOriginOr(cfg.AllowedOrigins)
	window.OnChange(hub.PublishOverlay)
	closers = append(closers, func() error { hub.Close(); return nil })

	onChange := []func(session.Snapshot){hub.PublishSession, m.SessionObserver()}
	onTurn := []func(session.TurnReport){m.OnTurn}
	var onEnd, onReset []func(session.Snapshot)

	checks := []handlers.ReadyCheck{{
		Name: "camera",
		Check: func(context.Context) error {
			if !cam.Ready() {
				return camera.ErrNotReady
			}
			return nil
		},
	}}

	if cfg.RedisAddr != "" {
		rdb, err := feed.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		closers = append(closers, rdb.Close)
		pub := feed.NewPublisher(rdb, logger)
		closers = append(closers, func() error { pub.Close(); return nil })
		onChange = append(onChange, pub.OnChange)
		checks = append(checks, handlers.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	var store history.Store
	if cfg.HistoryDSN != "" {
		store, err = history.Open(ctx, cfg.HistoryDSN)
		if err != nil {
			return nil, err
		}
		closers = append(closers, store.Close)
		rec := &history.Recorder{
			Store:       store,
			Faults:      window,
			DeviceID:    cfg.DeviceID,
			DeviceModel: cfg.DeviceModel,
			UserID:      cfg.UserID,
			Logger:      logger,
		}
		onEnd = append(onEnd, rec.OnEnd)
		onReset = append(onReset, rec.OnReset)
	}

	if cfg.ArchiveBucket != "" {
		client := archive.NewClient(archive.ClientConfig{
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			PathStyle: cfg.ArchivePathStyle,
		})
		arch := archive.New(client, cfg.ArchiveBucket, cfg.ArchivePrefix, logger)
		closers = append(closers, func() error { arch.Wait(); return nil })
		onTurn = append(onTurn, arch.OnTurn)
	}

	var cache *diagnosis.Cache
	if cfg.DiagnosisCacheDir != "" {
		cache, err = diagnosis.OpenCache(diagnosis.CacheOptions{
			Dir:    cfg.DiagnosisCacheDir,
			TTL:    cfg.DiagnosisCacheTTL,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		closers = append(closers, cache.Close)
	}
	diagnoser := diagnosis.New(engine, diagnosis.Options{
		Model:  cfg.Model,
		Prompt: profile.DiagnosisPrompt,
		Cache:  cache,
		Logger: logger,
	})

	temperature := cfg.Temperature
	sess, err := session.New(session.Dependencies{
		Chat:          engine,
		Camera:        cam,
		Voice:         pipeline,
		Player:        f.Player(),
		Extractor:     extractor,
		SpeechContext: speech,
		Hooks: session.Hooks{
			OnChange: fanout(onChange...),
			OnTurn:   fanout(onTurn...),
			OnEnd:    fanout(onEnd...),
			OnReset:  fanout(onReset...),
		},
		Logger: logger,
		Config: session.Config{
			Model:        cfg.Model,
			SystemPrompt: profile.ChatPrompt,
			MaxTokens:    cfg.MaxTokens,
			Temperature:  &temperature,
			RevealMin:    cfg.RevealMin,
			RevealMax:    cfg.RevealMax,
			ConfirmText:  profile.ConfirmText,
		},
	})
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() error { sess.Close(); return nil })

	var loop *overlay.Loop
	if det := f.Detector(speech); det != nil {
		loop, err = overlay.NewLoop(overlay.LoopConfig{
			Source:   cam,
			Detector: det,
			Window:   window,
			Interval: cfg.OverlayInterval,
			Active:   func() bool { return sess.Phase() == session.PhaseActive },
			Observer: m,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	} else {
		logger.Info("overlay detection disabled, MIDAS_DETECTOR_URL not set")
	}

	var limiter *ratelimit.Limiter
	if lc := (ratelimit.Config{
		RPS:                  cfg.LimitRPS,
		Burst:                cfg.LimitBurst,
		MaxConcurrentStreams: cfg.LimitMaxStreams,
	}); lc.Enabled() {
		limiter = ratelimit.New(lc)
	}

	return New(Components{
		Session:        sess,
		Window:         window,
		Loop:           loop,
		Camera:         cam,
		Diagnoser:      diagnoser,
		History:        store,
		Hub:            hub,
		Metrics:        m,
		Limiter:        limiter,
		Checks:         checks,
		Closers:        closers,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		HandlerTimeout: cfg.HandlerTimeout,
	}, logger), nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{
		Lifecycle: s.lifecycle,
		Checks:    s.c.Checks,
		Host:      handlers.ReadHostStats,
	})
	s.mux.Handle("GET /metrics", s.c.Metrics.Handler())

	sh := handlers.SessionHandler{Session: s.c.Session, MaxBodyBytes: s.c.MaxBodyBytes, Logger: s.logger}
	s.mux.HandleFunc("GET /v1/session", sh.Get)
	s.mux.HandleFunc("POST /v1/session/permissions", sh.Permissions)
	s.mux.HandleFunc("POST /v1/session/start", sh.Start)
	s.mux.Handle("POST /v1/session/turn", s.timeout(http.HandlerFunc(sh.Turn)))
	s.mux.Handle("POST /v1/session/confirm", s.timeout(http.HandlerFunc(sh.Confirm)))
	s.mux.HandleFunc("POST /v1/session/end", sh.End)
	s.mux.HandleFunc("POST /v1/session/reset", sh.Reset)

	s.mux.Handle("GET /v1/overlay", handlers.OverlayHandler{Window: s.c.Window})
	s.mux.Handle("POST /v1/diagnose", s.timeout(handlers.DiagnoseHandler{
		Diagnoser:    s.c.Diagnoser,
		Camera:       s.c.Camera,
		MaxBodyBytes: s.c.MaxBodyBytes,
	}))
	s.mux.Handle("GET /v1/history", handlers.HistoryHandler{Store: s.c.History})
	s.mux.Handle("GET /v1/history/{device_id}", handlers.HistoryHandler{Store: s.c.History})
	if s.c.Hub != nil {
		s.mux.Handle("GET /v1/feed", mw.LimitStreams(s.c.Limiter, s.c.Hub))
		s.mux.Handle("GET /v1/events", mw.LimitStreams(s.c.Limiter, handlers.EventsHandler{Source: s.c.Hub}))
	}

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// timeout bounds the request context. Feed routes are never wrapped since
// their connections outlive any handler deadline.
func (s *Server) timeout(h http.Handler) http.Handler {
	d := s.c.HandlerTimeout
	if d <= 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Observe(s.c.Metrics, h)
	h = mw.RateLimit(s.c.Limiter, h)
	h = mw.CORS(s.c.AllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Session returns the served session.
func (s *Server) Session() *session.Session { return s.c.Session }

// Start launches the overlay loop, if one is configured. It returns
// immediately; the loop stops when ctx is cancelled or on Close.
func (s *Server) Start(ctx context.Context) {
	if s.c.Loop != nil {
		s.c.Loop.Start(ctx)
	}
}

// SetDraining flips /readyz to 503 ahead of shutdown.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// Close stops the overlay loop and releases every component. It is safe to
// call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.c.Loop != nil {
			s.c.Loop.Stop()
			<-s.c.Loop.Done()
		}
		s.closeErr = runClosers(s.c.Closers, s.logger)
	})
	return s.closeErr
}

func runClosers(closers []func() error, logger *slog.Logger) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}

// fanout joins hooks into one, skipping nils. It returns nil when no hook
// remains so the session can skip the call entirely.
func fanout[T any](fns ...func(T)) func(T) {
	var live []func(T)
	for _, fn := range fns {
		if fn != nil {
			live = append(live, fn)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(v T) {
		for _, fn := range live {
			fn(v)
		}
	}
}
