package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jessevdk/go-flags"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vaultwatch/vaultwatch-backend/internal/chain"
	"github.com/vaultwatch/vaultwatch-backend/internal/clock"
	"github.com/vaultwatch/vaultwatch-backend/internal/metrics"
	"github.com/vaultwatch/vaultwatch-backend/internal/registry"
	"github.com/vaultwatch/vaultwatch-backend/internal/service/engine"
	"github.com/vaultwatch/vaultwatch-backend/internal/transport"
)

type config struct {
	RPCURL          string        `long:"rpc-url" env:"VAULTWATCH_RPC_URL" description:"Ethereum JSON-RPC endpoint" default:"http://127.0.0.1:8545"`
	PrivateKey      string        `long:"private-key" env:"VAULTWATCH_PRIVATE_KEY" description:"hex private key of the session signer" required:"true"`
	FactoryAddress  string        `long:"factory-address" env:"VAULTWATCH_FACTORY_ADDRESS" description:"vault factory contract address" required:"true"`
	TokenAddress    string        `long:"token-address" env:"VAULTWATCH_TOKEN_ADDRESS" description:"pDAI token contract address" required:"true"`
	PairAddress     string        `long:"pair-address" env:"VAULTWATCH_PAIR_ADDRESS" description:"pDAI/DAI pair contract address" required:"true"`
	RegistryPath    string        `long:"registry-path" env:"VAULTWATCH_REGISTRY_PATH" description:"path to the registry database" default:"vaultwatch.db"`
	Addr            string        `long:"addr" env:"VAULTWATCH_ADDR" description:"API listen address" default:":8080"`
	MetricsAddr     string        `long:"metrics-addr" env:"VAULTWATCH_METRICS_ADDR" description:"metrics listen address" default:":2112"`
	RPCRateLimit    int           `long:"rpc-rate-limit" env:"VAULTWATCH_RPC_RATE_LIMIT" description:"max chain reads per second" default:"20"`
	DialTimeout     time.Duration `long:"dial-timeout" env:"VAULTWATCH_DIAL_TIMEOUT" description:"RPC dial timeout" default:"15s"`
	ConnectAttempts int           `long:"connect-attempts" env:"VAULTWATCH_CONNECT_ATTEMPTS" description:"session connect attempts before giving up" default:"3"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	for name, addr := range map[string]string{
		"factory-address": cfg.FactoryAddress,
		"token-address":   cfg.TokenAddress,
		"pair-address":    cfg.PairAddress,
	} {
		if !common.IsHexAddress(addr) {
			logger.Fatal("invalid contract address", zap.String("flag", name), zap.String("value", addr))
		}
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("vaultwatch failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	reg, err := registry.Open(cfg.RegistryPath, metrics.NewRegistry())
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	defer func() {
		_ = reg.Close()
	}()

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc %s: %w", cfg.RPCURL, err)
	}
	defer eth.Close()

	chainID, err := eth.ChainID(dialCtx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}

	wallet, err := chain.NewKeyedWallet(cfg.PrivateKey, chainID)
	if err != nil {
		return fmt.Errorf("init wallet: %w", err)
	}

	client, err := chain.NewClient(eth, wallet, chain.Addresses{
		Factory: common.HexToAddress(cfg.FactoryAddress),
		Token:   common.HexToAddress(cfg.TokenAddress),
		Pair:    common.HexToAddress(cfg.PairAddress),
	}, metrics.NewChainClient(), cfg.RPCRateLimit, logger)
	if err != nil {
		return fmt.Errorf("init chain client: %w", err)
	}

	hub := transport.NewHub(logger)

	eng, err := engine.New(reg, client, client, wallet, hub, metrics.NewEngine(), logger)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	if err := connectWithRetry(ctx, eng, cfg.ConnectAttempts, 2*time.Second, logger); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	defer eng.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	transport.NewHandler(eng, hub, logger).Register(e)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down the http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown http server", zap.Error(err))
		}
	}()

	logger.Info("starting http server", zap.String("addr", cfg.Addr))
	if err := e.Start(cfg.Addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type sessionConnector interface {
	Connect(ctx context.Context) error
}

// connectWithRetry establishes the session, backing off between attempts.
// An RPC node that is still starting alongside the daemon settles within a
// few seconds; anything beyond attempts is a configuration problem.
func connectWithRetry(ctx context.Context, conn sessionConnector, attempts int, baseBackoff time.Duration, logger *zap.Logger) error {
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := conn.Connect(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts {
			return err
		}
		backoff := time.Duration(attempt) * baseBackoff
		logger.Warn("connect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if sleepErr := clock.SleepWithContext(ctx, backoff); sleepErr != nil {
			return err
		}
	}
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}
