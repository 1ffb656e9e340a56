// Package dashboard is the virtdashd service core.
//
// It composes the control plane client, the per-category TTL caches,
// the power action dispatcher with its convergence polling, the
// background poll scheduler, the password vault, and the HTTP API into
// one runnable service. All server state is owned by the control
// plane; everything held here is a cache with a declared staleness
// window.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/virtdash/virtdash/internal/config"
	"github.com/virtdash/virtdash/internal/db"
	"github.com/virtdash/virtdash/internal/vault"
	"github.com/virtdash/virtdash/internal/virtfusion"
)

const shutdownTimeout = 10 * time.Second

// Service is a fully wired virtdashd instance with bound listeners.
type Service struct {
	cfg        config.Config
	store      *db.Store
	dispatcher *Dispatcher
	scheduler  *Scheduler

	apiServer   *http.Server
	apiListener net.Listener

	metricsServer   *http.Server
	metricsListener net.Listener
}

// Run wires a service from config and serves until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	service, err := NewService(cfg, store)
	if err != nil {
		_ = store.Close()
		return err
	}
	return service.Serve(ctx)
}

// NewService constructs a service with bound listeners.
func NewService(cfg config.Config, store *db.Store) (*Service, error) {
	logger := log.Default()

	passwordVault, err := vault.Open(store, cfg.VaultKeyPath, time.Duration(cfg.VaultTTLMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}

	client := &virtfusion.APIClient{
		BaseURL:        cfg.ControlPlaneURL,
		APIToken:       cfg.APIToken,
		CommandTimeout: cfg.RequestTimeout(),
	}

	metrics := NewMetrics()
	cache := NewCache(CacheTTLs{
		Server:    time.Duration(cfg.ServerPollSeconds) * time.Second,
		VNC:       time.Duration(cfg.VNCTTLMinutes) * time.Minute,
		Traffic:   time.Duration(cfg.TrafficTTLSeconds) * time.Second,
		Templates: time.Duration(cfg.TemplatesTTLMin) * time.Minute,
		Branding:  time.Duration(cfg.BrandingTTLMin) * time.Minute,
	}, nil)

	poller := &Poller{Client: client, Cache: cache, Metrics: metrics, Logger: logger}
	dispatcher := NewDispatcher(client, poller, store, metrics, logger, ConvergeTiming{
		Delay:    time.Duration(cfg.ConvergeDelaySeconds) * time.Second,
		Interval: time.Duration(cfg.ConvergeIntervalSeconds) * time.Second,
		Window:   time.Duration(cfg.ConvergeWindowSeconds) * time.Second,
	})
	scheduler := NewScheduler(poller, metrics, logger,
		time.Duration(cfg.ServerPollSeconds)*time.Second,
		time.Duration(cfg.WatchWindowMinutes)*time.Minute,
	)

	metricsEnabled := cfg.MetricsListen != ""
	api := NewAPI(poller, dispatcher, scheduler, passwordVault, logger).WithMetricsEnabled(metricsEnabled)

	apiListener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen api %s: %w", cfg.Listen, err)
	}

	service := &Service{
		cfg:         cfg,
		store:       store,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		apiServer:   &http.Server{Handler: api.Routes()},
		apiListener: apiListener,
	}

	if metricsEnabled {
		metricsListener, err := net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			_ = apiListener.Close()
			return nil, fmt.Errorf("listen metrics %s: %w", cfg.MetricsListen, err)
		}
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		service.metricsServer = &http.Server{Handler: metricsMux}
		service.metricsListener = metricsListener
	}

	return service, nil
}

// Serve runs the listeners and background loops until ctx is cancelled
// or a listener fails.
func (s *Service) Serve(ctx context.Context) error {
	log.Printf("virtdashd: listening on api=%s", s.cfg.Listen)
	if s.metricsServer != nil {
		log.Printf("virtdashd: listening on metrics=%s", s.cfg.MetricsListen)
	}

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go s.scheduler.Run(pollCtx)
	go s.vaultHousekeeping(pollCtx)

	servers := 1
	errCh := make(chan error, 2)
	go func() { errCh <- s.apiServer.Serve(s.apiListener) }()
	if s.metricsServer != nil {
		servers = 2
		go func() { errCh <- s.metricsServer.Serve(s.metricsListener) }()
	}

	remaining := servers
	var serveErr error

	select {
	case <-ctx.Done():
		// graceful shutdown
	case err := <-errCh:
		remaining--
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	cancelPoll()
	s.shutdown()
	for i := 0; i < remaining; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) && serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

func (s *Service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.apiServer.Shutdown(ctx)
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(ctx)
	}
	s.dispatcher.Close()
	if s.store != nil {
		_ = s.store.Close()
	}
}

// vaultHousekeeping drops expired password entries periodically so the
// database does not accumulate dead ciphertext between reads.
func (s *Service) vaultHousekeeping(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.store.PurgeExpiredVaultEntries(ctx, time.Now().UTC()); err != nil {
				log.Printf("virtdashd: purge expired vault entries: %v", err)
			}
		}
	}
}
