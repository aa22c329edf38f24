package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/cart"
	"github.com/ariefcatur/go-lot-orders/internal/catalog"
	"github.com/ariefcatur/go-lot-orders/internal/config"
	"github.com/ariefcatur/go-lot-orders/internal/httpx"
	"github.com/ariefcatur/go-lot-orders/internal/inventory"
	"github.com/ariefcatur/go-lot-orders/internal/logging"
	"github.com/ariefcatur/go-lot-orders/internal/memstore"
	"github.com/ariefcatur/go-lot-orders/internal/postgres"
	"github.com/ariefcatur/go-lot-orders/internal/projector"
	"github.com/ariefcatur/go-lot-orders/internal/redisx"
	"github.com/ariefcatur/go-lot-orders/internal/sweeper"
	"github.com/ariefcatur/go-lot-orders/internal/tracing"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	addr := pflag.String("addr", "", "listen address (overrides HTTP_ADDR)")
	migrate := pflag.Bool("migrate", false, "create the schema before serving (postgres driver)")
	seed := pflag.String("seed", "", "JSON file with units, lots and carts to load (memory driver)")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName+"-api")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()
	tracing.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *migrate, *seed); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, migrate bool, seedFile string) error {
	svc := &inventory.Service{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		ExpirationDays: cfg.PreorderExpirationDays,
	}
	h := &httpx.OrdersHandler{Engine: svc, Log: log}

	var (
		units catalog.Source
		rdb   *redis.Client
	)
	if cfg.RedisAddr != "" {
		c := redisx.New(cfg.RedisAddr)
		defer c.Close()
		if err := c.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, idempotency and status cache disabled", zap.Error(err))
		} else {
			rdb = c
			h.Redis = rdb
			h.Status = &projector.RedisCache{RDB: rdb, Service: cfg.ServiceName}
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, 0)
		if err != nil {
			return err
		}
		defer db.Close()
		if migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			log.Info("schema migrated")
		}
		svc.Store = postgres.NewStore(log, db)
		svc.Carts = &cart.PG{DB: db}
		units = &catalog.PG{DB: db}
		if rdb != nil {
			units = &catalog.Cached{Next: units, Redis: rdb, Log: log}
		}
	case config.DriverMemory:
		store := memstore.New()
		carts := cart.NewMemory()
		static := catalog.Static{}
		if seedFile != "" {
			if err := loadSeed(seedFile, store, carts, static); err != nil {
				return err
			}
			log.Info("seed loaded", zap.String("file", seedFile))
		}
		svc.Store, svc.Carts, units = store, carts, static
		// without a shared database the worker cannot see these orders
		sw := sweeper.New(log, svc, nil, cfg.SweepInterval)
		g.Go(func() error { return sw.Run(ctx) })
	}

	lru, err := catalog.NewLRU(units, cfg.CatalogCacheSize)
	if err != nil {
		return err
	}
	svc.Catalog = lru

	router := httpx.NewRouter(log)
	h.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", string(cfg.StoreDriver)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
