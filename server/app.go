package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wgfleet/config"
	"wgfleet/internal/api"
	"wgfleet/internal/controller"
	"wgfleet/internal/db"
	"wgfleet/internal/health"
	"wgfleet/internal/journal"
	"wgfleet/internal/logs"
	"wgfleet/internal/middleware"
	"wgfleet/internal/models"
	"wgfleet/internal/peers"
	"wgfleet/internal/repo"
	"wgfleet/internal/wg"
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	Router     *mux.Router
	httpServer *http.Server

	// Runner можно подменить до Initialize (тесты, dry-run).
	Runner wg.Runner

	Registry   *repo.Registry
	Servers    *repo.ServerStore
	Telemetry  *wg.TelemetryReader
	Inspector  wg.Inspector
	Iface      *wg.InterfaceController
	Journal    *journal.Journal
	Peers      *peers.Service
	Reconciler *controller.Reconciler

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	/* 1) Логи */
	if err := logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	}); err != nil {
		return err
	}

	/* 2) DB */
	d, err := openDB(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("db open failed: %w", err)
	}
	if err := db.Migrate(d); err != nil {
		return fmt.Errorf("db migrate failed: %w", err)
	}
	a.db = d

	/* 3) Компоненты */
	if a.Runner == nil {
		a.Runner = wg.ExecRunner{}
	}
	tools := toolsFrom(a.cfg)
	a.Registry = repo.NewRegistry(d)
	a.Servers = repo.NewServerStore(d)
	a.Telemetry = wg.NewTelemetryReader(a.Runner, tools)
	a.Inspector = newInspector(a.cfg, a.Telemetry)
	a.Iface = wg.NewInterfaceController(a.Runner, tools, a.cfg.WireGuard.Persist)
	a.Journal, err = journal.Open(a.cfg.Reconcile.JournalDir)
	if err != nil {
		return err
	}

	log := logs.Logger.WithField("component", "peers")
	a.Peers = peers.New(peers.Dependencies{
		Registry:  a.Registry,
		Server:    a.Servers,
		Keys:      newKeyGenerator(a.cfg, a.Runner, tools),
		Interface: a.Iface,
		Telemetry: a.Telemetry,
		Journal:   a.Journal,
		Logger:    log,
	}, peers.Options{
		Endpoint:        a.cfg.Client.Endpoint,
		AllowedIPs:      a.cfg.Client.AllowedIPs,
		Keepalive:       a.cfg.Client.Keepalive,
		StrictTelemetry: a.cfg.Telemetry.Strict,
	})
	a.Reconciler = controller.NewReconciler(a.Registry, a.Servers, a.Inspector, a.Iface, a.Journal,
		controller.Options{PruneUnknown: a.cfg.Reconcile.PruneUnknown},
		logs.Logger.WithField("component", "reconciler"))

	/* 4) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)

	/* 5) Health */
	health.RegisterRoutesWithChecks(a.Router,
		health.DB(a.db),
		health.Interface(a.cfg.WireGuard.Interface, a.Inspector.PublicKey),
	)

	/* 6) API */
	h := api.NewHandler(a.Peers, &poolReporter{app: a}, a.Reconciler, logs.Logger.WithField("component", "api"))
	api.RegisterRoutes(a.Router, h, a.cfg.API.SharedSecret)

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := rt.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

func openDB(driver, dsn string) (*gorm.DB, error) {
	if driver == "sqlite" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		file := strings.SplitN(dsn, "?", 2)[0]
		if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
			return nil, err
		}
	}
	d, err := db.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// sqlite не переносит параллельных писателей
		sqlDB, err := d.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return d, nil
}

// InitServer провижинит синглтон сервера и засевает пул его подсети.
// Пустой publicKey читается с живого интерфейса.
func (a *App) InitServer(ctx context.Context, cidr, publicKey string, force bool) (*models.ServerIdentity, int, error) {
	iface := a.cfg.WireGuard.Interface
	if strings.TrimSpace(publicKey) == "" {
		k, err := a.Inspector.PublicKey(ctx, iface)
		if err != nil {
			return nil, 0, fmt.Errorf("read public key of %s: %w", iface, err)
		}
		publicKey = k
	}
	srv, err := a.Servers.Provision(ctx, models.ServerIdentity{
		InterfaceName: iface,
		PublicKey:     publicKey,
		ServerIPs:     cidr,
	}, force)
	if err != nil {
		return nil, 0, err
	}
	if force {
		// кэш ServerStore живёт в процессе: уже запущенный serve его не увидит
		logs.Logger.WithFields(logrus.Fields{"iface": iface, "server_ips": srv.ServerIPs}).
			Warn("server identity overwritten; restart running serve processes to pick it up")
	}
	n, err := a.SeedPool(ctx, "")
	return srv, n, err
}

// SeedPool засевает пул. Пустой cidr — pool.cidr из конфига, затем подсеть
// сервера. Засеять можно только подсеть сервера, адрес сервера исключается.
func (a *App) SeedPool(ctx context.Context, cidr string) (int, error) {
	srv, err := a.Servers.Resolve(ctx)
	if err != nil {
		return 0, err
	}
	pfx, err := srv.Prefix()
	if err != nil {
		return 0, err
	}
	if cidr == "" {
		cidr = a.cfg.Pool.CIDR
	}
	if cidr == "" {
		cidr = pfx.Masked().String()
	}
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if p.Masked() != pfx.Masked() {
		return 0, fmt.Errorf("%w: pool %s must match server subnet %s", models.ErrInvalidInput, p.Masked(), pfx.Masked())
	}
	n, err := a.Registry.Pool.Seed(ctx, cidr, pfx.Addr())
	if err != nil {
		return 0, err
	}
	logs.Logger.WithFields(logrus.Fields{"subnet": pfx.Masked().String(), "added": n}).Info("address pool seeded")
	return n, nil
}

func (a *App) Reconcile(ctx context.Context) (controller.Report, error) {
	return a.Reconciler.Reconcile(ctx)
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logs.Logger.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	if a.cfg.Reconcile.OnStart {
		rep, err := a.Reconcile(a.ctx)
		switch {
		case errors.Is(err, models.ErrServerNotConfigured):
			logs.Logger.Warn("server identity not provisioned yet, startup reconcile skipped (run `wgfleet server init`)")
		case err != nil:
			logs.Logger.WithError(err).Error("startup reconcile failed")
		default:
			logs.Logger.WithFields(logrus.Fields{
				"applied": len(rep.Applied), "removed": len(rep.Removed), "pool_fixed": rep.PoolFixed,
			}).Info("startup reconcile done")
		}
	}

	// Жёсткие таймауты — это важно для production
	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			a.cancel()
		}
	}()

	<-a.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	a.Close()
	select {
	case err := <-errc:
		return fmt.Errorf("http server error: %w", err)
	default:
		return nil
	}
}

// Close освобождает БД.
func (a *App) Close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
