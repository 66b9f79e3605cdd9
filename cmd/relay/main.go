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

	"mitmlab.org/internal/audit"
	"mitmlab.org/internal/auth"
	"mitmlab.org/internal/channels"
	"mitmlab.org/internal/chat"
	"mitmlab.org/internal/config"
	"mitmlab.org/internal/gateway"
	"mitmlab.org/internal/httpapi"
	"mitmlab.org/internal/intercept"
	"mitmlab.org/internal/obs"
	"mitmlab.org/internal/relay"
	"mitmlab.org/internal/session"
	"mitmlab.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Str("level", cfg.LogLevel).Msg("unknown log level, keeping default")
	}

	// Инициализация observability (регистрация метрик, build_info)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Хранилище: PostgreSQL, если задан DSN, иначе in-memory
	var (
		store chat.Store
		db    *sql.DB
	)
	if cfg.PGDSN != "" {
		pgs, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open db")
		}
		store, db = pgs, pgs.DB()
	} else {
		store = chat.NewInMemory()
		log.Warn().Msg("MITMLAB_PG_DSN not set, messages are kept in memory")
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		log.Fatal().Err(err).Msg("jwt verifier")
	}

	reg := channels.NewRegistry()
	ctrl := intercept.New(reg)
	sessions := session.NewManager(reg, verifier, ctrl)
	rl := relay.New(reg, ctrl, audit.NewSink(store, reg), store, sessions)
	gw := gateway.New(sessions, rl, gateway.Options{
		AllowOrigin:     cfg.OriginAllowed,
		EventRatePerSec: cfg.EventRatePerSec,
		EventRateBurst:  cfg.EventRateBurst,
		MaxMessageBytes: cfg.MaxMessageBytes,
	})

	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("trusted proxies")
	}
	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, gw, httpapi.Options{
		AllowOrigin:       cfg.OriginAllowed,
		UpgradeRatePerSec: cfg.UpgradeRatePerSec,
		UpgradeRateBurst:  cfg.UpgradeRateBurst,
		TrustedProxies:    proxies,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("grpc listen")
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewGRPCHealth(probe)
		health.Register(grpcSrv)
		go health.Run(ctx, 10*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error().Err(err).Msg("grpc serve")
			}
		}()
		log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc health listening")
	}

	log.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting mitmlab relay")

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("websocket connections did not drain")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Info().Msg("stopped")
}
