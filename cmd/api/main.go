package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"beaconhealth.org/internal/cache"
	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/config"
	"beaconhealth.org/internal/httpapi"
	"beaconhealth.org/internal/messaging"
	"beaconhealth.org/internal/obs"
	"beaconhealth.org/internal/prescription"
	"beaconhealth.org/internal/progress"
	"beaconhealth.org/internal/seed"
	"beaconhealth.org/internal/store/pg"
)

var commit = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	if cfg.LogFormat == "console" {
		obs.UseConsole()
	}
	obs.Init()
	obs.InitBuildInfo(cfg.Version, commit, cfg.StoreKind())
	log := obs.Logger()

	var (
		db     *sql.DB
		svc    httpapi.Services
		closer func() error
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN, pg.WithRequirePrescription(cfg.RequirePrescription))
		if err != nil {
			log.Fatal().Err(err).Msg("open db")
		}
		db = store.DB()
		closer = store.Close
		svc = httpapi.Services{Catalog: store, Prescriptions: store, Progress: store, Messages: store}
	} else {
		apps := catalog.NewInMemory()
		rx := prescription.NewInMemory(apps)
		var progOpts []progress.Option
		if cfg.RequirePrescription {
			progOpts = append(progOpts, progress.RequirePrescription(rx))
		}
		svc = httpapi.Services{
			Catalog:       apps,
			Prescriptions: rx,
			Progress:      progress.NewInMemory(apps, progOpts...),
			Messages:      messaging.NewInMemory(apps),
		}
	}

	ready := httpapi.ReadyCheck{DB: db}
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.Dial(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("dial redis")
		}
		defer client.Close()
		svc.Catalog = cache.NewCatalog(svc.Catalog, client, cfg.RedisTTL)
		ready.Checks = append(ready.Checks, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	if cfg.SeedDemo {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res, err := loadDemo(ctx, svc)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("seed demo data")
		}
		log.Info().Interface("result", res).Msg("demo seed")
	}

	api := httpapi.New(ready, cfg.Version, svc, httpapi.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	httpapi.NewGRPCServer(ready).Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("listen grpc")
	}

	log.Info().
		Str("version", cfg.Version).
		Str("http_addr", cfg.HTTPAddr).
		Str("grpc_addr", cfg.GRPCAddr).
		Str("store", cfg.StoreKind()).
		Bool("cache", cfg.RedisAddr != "").
		Msg("starting beacon-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen http")
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatal().Err(err).Msg("serve grpc")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	if closer != nil {
		_ = closer()
	}
	log.Info().Msg("stopped")
}

func loadDemo(ctx context.Context, svc httpapi.Services) (seed.Result, error) {
	fixtures, err := seed.Demo()
	if err != nil {
		return seed.Result{}, err
	}
	return seed.Load(ctx, seed.Targets{
		Catalog:       svc.Catalog,
		Prescriptions: svc.Prescriptions,
		Messages:      svc.Messages,
	}, fixtures)
}
