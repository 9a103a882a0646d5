package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/ride-hub/config"
	"github.com/cwrk-planet/ride-hub/internal/domain"
	"github.com/cwrk-planet/ride-hub/internal/lifecycle"
	"github.com/cwrk-planet/ride-hub/internal/location"
	"github.com/cwrk-planet/ride-hub/internal/logger"
	"github.com/cwrk-planet/ride-hub/internal/registry"
	"github.com/cwrk-planet/ride-hub/internal/rooms"
	"github.com/cwrk-planet/ride-hub/internal/router"
	"github.com/cwrk-planet/ride-hub/internal/security"
	grpcx "github.com/cwrk-planet/ride-hub/internal/transport/grpc"
	httpx "github.com/cwrk-planet/ride-hub/internal/transport/http"
	"github.com/cwrk-planet/ride-hub/internal/transport/ws"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting ride-hub",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- credentials ---
	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// --- broker core ---
	reg := registry.New(verifier)
	dir := rooms.NewDirectory()
	locs := location.NewCache()
	lc := lifecycle.New(reg, dir, locs, logger.L())
	rt := router.New(reg, dir, locs, lc, logger.L())

	// --- WS ---
	wsServer := ws.NewServer(lc, rt, ws.Options{
		SendQueue:      cfg.Transport.SendQueue,
		MaxMessageSize: cfg.Transport.MaxMessageSize,
		PingInterval:   cfg.Transport.PingInterval,
		PongWait:       cfg.Transport.PongWait,
		WriteWait:      cfg.Transport.WriteWait,
		RateLimit:      cfg.Transport.RateLimit,
		RateBurst:      cfg.Transport.RateBurst,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger.L())

	// --- HTTP ---
	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpx.NewRouter(httpx.Deps{
			WS:             wsServer.HandleWS,
			Stats:          brokerStats{reg: reg, rooms: dir},
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Log:            logger.L(),
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcServer, health := grpcx.NewServer(logger.L())

	// --- background ---
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go locs.RunJanitor(ctx, cfg.Location.TTL, cfg.Location.PruneInterval, logger.Component("location"))

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	health.Shutdown()
	stop()
	_ = httpSrv.Shutdown(ctxShutdown)
	// hijacked sockets are not tracked by http.Server
	if err := lc.Shutdown(ctxShutdown); err != nil {
		slog.Warn("connections not drained", "err", err)
	}
	grpcServer.GracefulStop()
	slog.Info("stopped")
}

func newVerifier(a config.Auth) (security.Verifier, error) {
	if len(a.StaticTokens) > 0 {
		slog.Warn("using static token verifier; not for production", "tokens", len(a.StaticTokens))
		v := make(security.StaticVerifier, len(a.StaticTokens))
		for tok, st := range a.StaticTokens {
			v[tok] = domain.Identity{UserID: st.UserID, Role: domain.Role(st.Role)}
		}
		return v, nil
	}

	opts := security.JWTOptions{
		Alg:       a.JWT.Alg,
		Secret:    []byte(a.JWT.Secret),
		Issuer:    a.JWT.Issuer,
		Audience:  a.JWT.Audience,
		ClockSkew: a.JWT.ClockSkew,
	}
	if a.JWT.Alg == "RS256" {
		pub, err := security.LoadRSAPublicKeyFromPEM(a.JWT.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		opts.PublicKey = pub
	}
	return security.NewJWTVerifier(opts)
}

type brokerStats struct {
	reg   *registry.Registry
	rooms *rooms.Directory
}

func (s brokerStats) Connections() int { return s.reg.Count() }
func (s brokerStats) Rooms() int       { return s.rooms.Len() }
