package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"remotevibes/internal/api"
	"remotevibes/internal/config"
	"remotevibes/internal/monitor"
	"remotevibes/internal/orchestrator"
	"remotevibes/internal/ports"
	"remotevibes/internal/session/repo"
	"remotevibes/internal/tunnel"
	"remotevibes/internal/worker"

	"github.com/hibiken/asynq"
)

type Server struct {
	cfg         *config.Config
	deps        *Dependency
	httpServer  *http.Server
	asynqServer *asynq.Server
	asynqMux    *asynq.ServeMux
	logger      *slog.Logger
}

func NewServer(cfg *config.Config, deps *Dependency) *Server {
	logger := deps.Logger

	sessionRepo := repo.NewRepository(deps.PG, deps.Redis)

	var registrar tunnel.Registrar
	if cfg.Tunnel.TunnelID != "" && cfg.Tunnel.Domain != "" {
		registrar = tunnel.NewCloudflared(cfg.Tunnel, deps.Docker, logger)
	} else {
		registrar = tunnel.NewNoop()
	}

	orch := orchestrator.New(
		sessionRepo,
		deps.Docker,
		ports.NewAllocator(),
		registrar,
		deps.AsynqClient,
		cfg.Agent,
		logger,
	)

	containerWorker := worker.NewContainerTaskWorker(sessionRepo, deps.Docker, logger)

	asynqServer := asynq.NewServer(deps.AsynqRedis, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.ComposeRestartTask, containerWorker.HandleComposeRestart)
	mux.HandleFunc(worker.ContainerSweepTask, containerWorker.HandleContainerSweep)

	router := api.NewRouter(orch, sessionRepo, cfg.Agent, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		cfg:         cfg,
		deps:        deps,
		httpServer:  httpServer,
		asynqServer: asynqServer,
		asynqMux:    mux,
		logger:      logger,
	}
}

func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.Info("Starting Asynq worker", "concurrency", s.cfg.Worker.Concurrency)
		if err := s.asynqServer.Start(s.asynqMux); err != nil {
			s.logger.Error("Asynq worker failed", "error", err)
		}
	}()

	metricsServer := monitor.NewServer(s.cfg.Metrics.Addr, s.logger)
	go func() {
		if err := metricsServer.Run(ctx); err != nil {
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()

	go s.sweepLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server", "addr", s.cfg.Server.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received, draining...")
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

// sweepLoop 周期性入队一次过期容器清扫任务
func (s *Server) sweepLoop(ctx context.Context) {
	if s.cfg.Worker.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.Worker.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.deps.AsynqClient.Enqueue(worker.NewContainerSweepTask()); err != nil {
				s.logger.Warn("Failed to enqueue container sweep", "error", err)
			}
		}
	}
}

func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.asynqServer.Shutdown()

	s.logger.Info("Server stopped gracefully")
	return nil
}

type asynqLogger struct {
	l *slog.Logger
}

func newAsynqLogger(l *slog.Logger) *asynqLogger {
	return &asynqLogger{l: l.With("component", "asynq")}
}

func (a *asynqLogger) Debug(args ...any) { a.l.Debug("", "msg", args) }
func (a *asynqLogger) Info(args ...any)  { a.l.Info("", "msg", args) }
func (a *asynqLogger) Warn(args ...any)  { a.l.Warn("", "msg", args) }
func (a *asynqLogger) Error(args ...any) { a.l.Error("", "msg", args) }
func (a *asynqLogger) Fatal(args ...any) { a.l.Error("FATAL", "msg", args) }
