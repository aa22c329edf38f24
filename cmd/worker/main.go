package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-lot-orders/internal/cart"
	"github.com/ariefcatur/go-lot-orders/internal/catalog"
	"github.com/ariefcatur/go-lot-orders/internal/config"
	"github.com/ariefcatur/go-lot-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-lot-orders/internal/kafka"
	"github.com/ariefcatur/go-lot-orders/internal/logging"
	"github.com/ariefcatur/go-lot-orders/internal/outbox"
	"github.com/ariefcatur/go-lot-orders/internal/postgres"
	"github.com/ariefcatur/go-lot-orders/internal/projector"
	"github.com/ariefcatur/go-lot-orders/internal/redisx"
	"github.com/ariefcatur/go-lot-orders/internal/sweeper"
	"github.com/ariefcatur/go-lot-orders/internal/tracing"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	noRelay := pflag.Bool("no-relay", false, "do not publish the outbox")
	noSweep := pflag.Bool("no-sweep", false, "do not expire overdue preorders")
	noProject := pflag.Bool("no-project", false, "do not maintain the order status cache")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}
	if cfg.StoreDriver != config.DriverPostgres {
		_, _ = os.Stderr.WriteString("worker needs STORE_DRIVER=postgres\n")
		os.Exit(2)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName+"-worker")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()
	tracing.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 0)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	host, _ := os.Hostname()
	holder := fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])

	g, ctx := errgroup.WithContext(ctx)

	if !*noRelay {
		producer := kafkax.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		relay := outbox.NewRelay(log, postgres.NewOutboxStore(log, db),
			outbox.NewDispatcher(log, producer, cfg.OutboxTopic), holder)
		g.Go(func() error {
			log.Info("outbox relay started", zap.String("relay_id", holder))
			return relay.Run(ctx)
		})
	}

	if !*noSweep {
		svc := &inventory.Service{
			Store:          postgres.NewStore(log, db),
			Catalog:        &catalog.PG{DB: db},
			Carts:          &cart.PG{DB: db},
			Log:            log,
			ServiceName:    cfg.ServiceName,
			ExpirationDays: cfg.PreorderExpirationDays,
		}
		lease := &redisx.Lease{RDB: rdb, Key: fmt.Sprintf(redisx.KeySweepLease, cfg.ServiceName), Holder: holder}
		sw := sweeper.New(log, svc, lease, cfg.SweepInterval)
		g.Go(func() error {
			log.Info("sweeper started", zap.Duration("interval", cfg.SweepInterval))
			return sw.Run(ctx)
		})
	}

	if !*noProject {
		proj := projector.New(log, &projector.RedisCache{RDB: rdb, Service: cfg.ServiceName})
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, projector.Topics, cfg.WorkerCount, log)
		g.Go(func() error {
			log.Info("projector started",
				zap.String("group", cfg.WorkerGroup), zap.Strings("topics", projector.Topics), zap.Int("workers", cfg.WorkerCount))
			return cons.Start(ctx, proj.Handle)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("worker exited", zap.Error(err))
		return
	}
	log.Info("worker stopped")
}
