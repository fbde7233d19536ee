package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/el-gregus/skr-swap/internal/account"
	"github.com/el-gregus/skr-swap/internal/api"
	"github.com/el-gregus/skr-swap/internal/config"
	"github.com/el-gregus/skr-swap/internal/engine"
	"github.com/el-gregus/skr-swap/internal/events"
	"github.com/el-gregus/skr-swap/internal/exchange"
	"github.com/el-gregus/skr-swap/internal/metrics"
	"github.com/el-gregus/skr-swap/internal/router"
	"github.com/el-gregus/skr-swap/internal/store"
	"github.com/el-gregus/skr-swap/internal/swap"
	"github.com/el-gregus/skr-swap/internal/util"
)

func main() {
	cfgPath := getEnv("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLog := util.NewLogger("info", "")
		bootLog.Fatal().Err(err).Str("path", cfgPath).Msg("load config")
	}

	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogDir)
	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info().Str("env", cfg.App.Env).Msg("starting skr-swap")

	st, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	jupiter := exchange.NewJupiterClient(cfg.Jupiter.APIURL, cfg.Jupiter.PriceAPIURL, log)
	solana := exchange.NewSolanaClient(cfg.Solana.RpcURL, cfg.Solana.Commitment, log)

	reg, err := account.BuildRegistry(cfg.Accounts, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build accounts")
	}

	bus := events.NewBus()
	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engines := make(map[string]router.Sink, len(reg.All()))
	for _, acct := range reg.All() {
		manager := swap.NewManager(acct, jupiter, solana, st, bus, cfg.Tokens,
			cfg.Jupiter.ComputeUnitPrice, cfg.Jupiter.ConfirmRetries, log)
		eng := engine.New(acct, manager, solana, cfg.Tokens, log)
		engines[acct.ID] = eng
		go eng.Run(ctx)
	}

	signals := router.New(reg, engines, st, bus, log)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	server := api.NewServer(signals, st, reg, bus, cfg.Webhook.SourceTag, log)
	httpSrv := &http.Server{Addr: cfg.App.ListenAddr, Handler: server.Router}

	go func() {
		log.Info().Str("addr", cfg.App.ListenAddr).Msg("webhook server up")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
