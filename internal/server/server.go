/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/openhome/internal/api"
	"github.com/friendsincode/openhome/internal/archive"
	"github.com/friendsincode/openhome/internal/audit"
	"github.com/friendsincode/openhome/internal/cache"
	"github.com/friendsincode/openhome/internal/config"
	"github.com/friendsincode/openhome/internal/controller"
	"github.com/friendsincode/openhome/internal/db"
	"github.com/friendsincode/openhome/internal/discovery"
	"github.com/friendsincode/openhome/internal/eventbus"
	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/flow"
	"github.com/friendsincode/openhome/internal/hardware"
	"github.com/friendsincode/openhome/internal/logbuffer"
	"github.com/friendsincode/openhome/internal/mqtt"
	"github.com/friendsincode/openhome/internal/runlog"
	"github.com/friendsincode/openhome/internal/seed"
	"github.com/friendsincode/openhome/internal/station"
	"github.com/friendsincode/openhome/internal/store"
	"github.com/friendsincode/openhome/internal/telemetry"
	"github.com/friendsincode/openhome/internal/version"
	"github.com/friendsincode/openhome/internal/weather"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	store     *store.Store
	bus       *events.Bus
	logBuffer *logbuffer.Buffer
	api       *api.API
	auditSvc  *audit.Service

	ctrl       *controller.Controller
	output     *hardware.Output
	dispatcher *hardware.Dispatcher
	remote     *hardware.RemoteSwitcher
	rain       controller.RainSensor
	remoteRain *hardware.RemoteRainSensor
	tracker    *flow.Tracker
	pulses     flow.PulseSource
	runStore   *runlog.GormStore
	recorder   *runlog.Recorder
	archiver   *archive.Archiver
	probe      *weather.NetworkProbe

	cache      *cache.Cache
	bridge     *eventbus.Bridge
	mqtt       *mqtt.Client
	advertiser *discovery.Advertiser

	ctrlCancel context.CancelFunc
	ctrlDone   chan struct{}
	bgCancel   context.CancelFunc
	bgWG       sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("openhome-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Websocket handlers manage their own write deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.store = store.New(database, s.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.cfg.SeedFile != "" {
		if err := s.importSeed(ctx); err != nil {
			return fmt.Errorf("import seed %s: %w", s.cfg.SeedFile, err)
		}
	}

	if err := s.initHardware(); err != nil {
		return err
	}

	s.runStore = runlog.NewGormStore(database)
	s.recorder = runlog.NewRecorder(s.runStore, 200, s.logger)
	var objects archive.ObjectStore
	if s.cfg.ArchiveBucket != "" {
		st, err := archive.NewS3Store(ctx, archive.S3Config{
			Endpoint:     s.cfg.ArchiveEndpoint,
			Region:       s.cfg.ArchiveRegion,
			Bucket:       s.cfg.ArchiveBucket,
			Prefix:       s.cfg.ArchivePrefix,
			AccessKey:    s.cfg.ArchiveAccessKey,
			SecretKey:    s.cfg.ArchiveSecretKey,
			UsePathStyle: s.cfg.ArchivePathStyle,
		})
		if err != nil {
			return fmt.Errorf("init run log archive: %w", err)
		}
		objects = st
	}
	s.archiver = archive.New(s.runStore, objects, s.logger)

	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}
	deps := controller.Deps{
		Output:   s.output,
		RunLog:   s.recorder,
		Events:   s.bus,
		Flow:     s.tracker,
		Rain:     s.rain,
		Settings: s.store,
		Loader:   s.store,
	}
	if s.cfg.WeatherURL != "" {
		deps.Weather = weather.NewSource(s.cfg.WeatherURL)
	}
	s.ctrl = controller.New(controller.Options{
		QueueCapacity:   s.cfg.QueueCapacity,
		PollInterval:    s.cfg.PollInterval,
		WeatherInterval: s.cfg.WeatherInterval,
		Location:        loc,
	}, deps, s.logger)
	if err := s.ctrl.Load(ctx); err != nil {
		return fmt.Errorf("load controller state: %w", err)
	}
	if err := s.refreshSpecials(ctx); err != nil {
		return err
	}

	if s.cfg.NetworkProbeAddr != "" {
		s.probe = weather.NewNetworkProbe(s.cfg.NetworkProbeAddr, s.cfg.NetworkProbeInterval, s.logger)
	}

	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	if s.cfg.RedisAddr != "" {
		ccfg := cache.DefaultConfig()
		ccfg.RedisAddr = s.cfg.RedisAddr
		ccfg.RedisPassword = s.cfg.RedisPassword
		ccfg.RedisDB = s.cfg.RedisDB
		c, err := cache.New(ccfg, s.logger)
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		s.cache = c
		s.DeferClose(c.Close)
	}

	var sinks []eventbus.Sink
	if s.cfg.NATSURL != "" {
		ncfg := eventbus.DefaultNATSConfig()
		ncfg.URL = s.cfg.NATSURL
		sink, err := eventbus.NewNATSSink(ncfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("nats unavailable, events stay local")
		} else {
			sinks = append(sinks, sink)
		}
	}
	if s.cfg.RedisAddr != "" {
		sink, err := eventbus.NewRedisSink(ctx, eventbus.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		if err != nil {
			s.logger.Warn().Err(err).Msg("redis pub/sub unavailable")
		} else {
			sinks = append(sinks, sink)
		}
	}
	s.bridge = eventbus.NewBridge(s.bus, eventbus.NodeID(), s.logger, sinks...)

	if s.cfg.MQTTBroker != "" {
		var rain mqtt.RainInput
		if s.remoteRain != nil {
			rain = s.remoteRain
		}
		s.mqtt = mqtt.NewClient(mqtt.Config{
			Broker:      s.cfg.MQTTBroker,
			ClientID:    s.cfg.MQTTClientID,
			TopicPrefix: s.cfg.MQTTTopicPrefix,
		}, s.bus, s.ctrl, rain, s.logger)
	}

	if s.cfg.MDNSEnabled {
		s.advertiser = discovery.NewAdvertiser(s.cfg.MDNSInterface, s.logger)
		s.DeferClose(func() error {
			s.advertiser.Shutdown()
			return nil
		})
	}

	s.api = api.New(api.Config{
		JWTSecret:         []byte(s.cfg.JWTSigningKey),
		AdminPasswordHash: s.cfg.AdminPasswordHash,
	}, api.Deps{
		Controller: s.ctrl,
		Store:      s.store,
		RunLog:     s.runStore,
		Audit:      s.auditSvc,
		Bus:        s.bus,
		LogBuffer:  s.logBuffer,
		Reload:     s.reload,
	}, s.logger)

	return nil
}

// initHardware selects the valve bank, special station transports and
// sensor inputs. Without any pins configured everything runs in memory.
func (s *Server) initHardware() error {
	usesGPIO := s.cfg.SRDataPin != "" || s.cfg.FlowGPIOPin != "" || s.cfg.RainGPIOPin != "" || s.cfg.RFGPIOPin != ""
	if usesGPIO {
		if err := hardware.Init(); err != nil {
			return err
		}
	}

	var bank hardware.Bank = &hardware.MemoryBank{}
	if s.cfg.SRDataPin != "" {
		sr, err := hardware.NewShiftRegister(s.cfg.SRDataPin, s.cfg.SRClockPin, s.cfg.SRLatchPin)
		if err != nil {
			return fmt.Errorf("open shift register: %w", err)
		}
		bank = sr
	} else {
		s.logger.Warn().Msg("no shift register pins configured, valve state is kept in memory")
	}

	s.dispatcher = hardware.NewDispatcher(s.logger)
	s.remote = hardware.NewRemoteSwitcher()
	s.dispatcher.Register(station.TypeRemote, s.remote)
	s.dispatcher.Register(station.TypeGPIO, hardware.NewGPIOSwitcher())
	s.dispatcher.Register(station.TypeHTTP, hardware.NewHTTPSwitcher())
	if s.cfg.RFGPIOPin != "" {
		rf, err := hardware.NewRFTransmitter(s.cfg.RFGPIOPin)
		if err != nil {
			return fmt.Errorf("open rf transmitter: %w", err)
		}
		s.dispatcher.Register(station.TypeRF, rf)
	}
	s.output = hardware.NewOutput(bank, s.dispatcher, s.logger)

	s.tracker = flow.NewTracker()
	if s.cfg.FlowGPIOPin != "" {
		src, err := flow.NewGPIOSource(s.cfg.FlowGPIOPin, s.logger)
		if err != nil {
			return err
		}
		s.pulses = src
	}

	if s.cfg.RainGPIOPin != "" {
		rs, err := hardware.NewGPIORainSensor(s.cfg.RainGPIOPin)
		if err != nil {
			return fmt.Errorf("open rain sensor: %w", err)
		}
		s.rain = rs
	} else {
		// Rain reports arrive over MQTT.
		s.remoteRain = &hardware.RemoteRainSensor{}
		s.rain = s.remoteRain
	}
	return nil
}

func (s *Server) importSeed(ctx context.Context) error {
	rows, err := s.store.Programs(ctx)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		s.logger.Info().Msg("programs already stored, skipping seed import")
		return nil
	}
	f, err := seed.ParseFile(s.cfg.SeedFile)
	if err != nil {
		return err
	}
	res, err := seed.Apply(ctx, s.store, f)
	if err != nil {
		return err
	}
	s.logger.Info().
		Bool("settings", res.Settings).
		Int("stations", res.Stations).
		Int("programs", res.Programs).
		Msg("seed imported")
	return nil
}

// refreshSpecials pushes stored special station data and the remote
// password to the output path.
func (s *Server) refreshSpecials(ctx context.Context) error {
	specials, err := s.store.LoadSpecials(ctx)
	if err != nil {
		return err
	}
	s.output.SetSpecial(specials)
	settings, err := s.store.LoadSettings(ctx)
	if err != nil {
		return err
	}
	s.remote.SetPassword(settings.RemotePassword)
	return nil
}

// reload re-reads stored configuration into the running controller.
func (s *Server) reload(ctx context.Context) error {
	if err := s.ctrl.Reload(ctx); err != nil {
		return err
	}
	if err := s.refreshSpecials(ctx); err != nil {
		return err
	}
	s.advertise()
	return nil
}

func (s *Server) advertise() {
	if s.advertiser == nil {
		return
	}
	info := discovery.Info{Name: s.cfg.InstanceName, Version: version.Version}
	if snap := s.ctrl.Snapshot(); snap != nil {
		info.Stations = snap.Stations
	}
	if settings, err := s.store.LoadSettings(context.Background()); err == nil {
		info.RemoteExtension = settings.RemoteExtension
	}
	if err := s.advertiser.Advertise(info, s.cfg.HTTPPort); err != nil {
		s.logger.Warn().Err(err).Msg("mdns advertisement failed")
	}
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close stops the control loop, which switches every station off, and
// releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	if s.dispatcher != nil {
		s.dispatcher.Wait()
	}
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) goWorker(ctx context.Context, name string, fn func(ctx context.Context) error) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Str("worker", name).Msg("background worker exited")
		}
	}()
}

func (s *Server) startBackgroundWorkers() {
	if s.ctrl == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// The loop has its own context so its final all-off records still
	// reach the run log recorder on shutdown.
	ctrlCtx, ctrlCancel := context.WithCancel(context.Background())
	s.ctrlCancel = ctrlCancel
	s.ctrlDone = make(chan struct{})
	errc := s.ctrl.Start(ctrlCtx)
	go func() {
		defer close(s.ctrlDone)
		if err := <-errc; err != nil {
			s.logger.Error().Err(err).Msg("control loop exited")
		}
	}()

	s.goWorker(ctx, "runlog", func(ctx context.Context) error {
		s.recorder.Run(ctx)
		return nil
	})

	if s.pulses != nil {
		s.goWorker(ctx, "flow", func(ctx context.Context) error {
			return s.pulses.Run(ctx, s.tracker.OnPulse)
		})
	}

	if s.probe != nil {
		s.goWorker(ctx, "network-probe", func(ctx context.Context) error {
			s.probe.Run(ctx, s.ctrl)
			return nil
		})
	}

	// Start database metrics updater and run log pruning
	s.goWorker(ctx, "db-maintenance", func(ctx context.Context) error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		lastPrune := time.Time{}
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
				if s.cfg.RunLogRetention > 0 && now.Sub(lastPrune) >= time.Hour {
					lastPrune = now
					n, err := s.archiver.Run(ctx, now.Add(-s.cfg.RunLogRetention))
					if err != nil {
						s.logger.Error().Err(err).Msg("prune run log failed")
					} else if n > 0 {
						s.logger.Info().Int64("removed", n).Msg("run log pruned")
					}
				}
			}
		}
	})

	s.goWorker(ctx, "audit", func(ctx context.Context) error {
		s.auditSvc.Start(ctx)
		return nil
	})

	s.goWorker(ctx, "eventbus", func(ctx context.Context) error {
		s.bridge.Run(ctx)
		return nil
	})

	if s.cache != nil {
		s.goWorker(ctx, "cache", func(ctx context.Context) error {
			s.cache.Run(ctx, s.ctrl.Snapshot, time.Second)
			return nil
		})
	}

	if s.mqtt != nil {
		s.goWorker(ctx, "mqtt", func(ctx context.Context) error {
			if err := s.mqtt.Connect(ctx); err != nil {
				return err
			}
			s.mqtt.Run(ctx)
			return nil
		})
	}

	s.advertise()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.ctrlCancel()
	<-s.ctrlDone
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status, code := "ok", http.StatusOK
		if snap := s.ctrl.Snapshot(); snap == nil || time.Since(snap.Time) > 10*time.Second {
			status, code = "stalled", http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		_, _ = fmt.Fprintf(w, `{"status":%q,"version":%q}`, status, version.Version)
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
