package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"littercoin/config"
	"littercoin/core"
	"littercoin/crypto"
	"littercoin/native/coin"
	"littercoin/observability/logging"
	"littercoin/observability/otel"
	"littercoin/rpc"
	"littercoin/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LITTERCOIN_ENV"))
	logger := logging.Setup("littercoind", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" && strings.TrimSpace(cfg.Environment) != "" {
		logger = logging.Setup("littercoind", cfg.Environment)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("path", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	adminKey, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, cfg.AdminPassphrase())
	if err != nil {
		logger.Error("failed to load admin keystore", slog.String("path", cfg.AdminKeystorePath), slog.Any("error", err))
		os.Exit(1)
	}
	adminAddr := adminKey.PubKey().Address()

	params := coin.DefaultParams()
	if path := strings.TrimSpace(cfg.ParamsFile); path != "" {
		params, err = coin.LoadParamsFile(path)
		if err != nil {
			logger.Error("failed to load params file", slog.String("path", path), slog.Any("error", err))
			os.Exit(1)
		}
	}

	ledger := core.NewLedger(db)
	ledger.SetLogger(logger.With(slog.String("component", "ledger")))

	oracle, stopOracle, err := buildOracle(cfg, params)
	if err != nil {
		logger.Error("failed to configure price oracle", slog.String("mode", cfg.Oracle.Mode), slog.Any("error", err))
		os.Exit(1)
	}
	defer stopOracle()
	ledger.SetOracle(oracle)

	if err := ledger.Bootstrap(adminAddr.Bytes(), params); err != nil {
		logger.Error("failed to bootstrap ledger", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("ledger ready",
		slog.String("admin", adminAddr.String()),
		slog.Uint64("chain_id", params.ChainID),
		slog.Uint64("max_transfers", params.MaxTransfers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		shutdownTelemetry, err := otel.Init(ctx, otel.Config{
			ServiceName: "littercoind",
			Environment: cfg.Environment,
			Endpoint:    endpoint,
			Insecure:    true,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	authToken := cfg.RPCAuthToken()
	if authToken == "" {
		logger.Warn("RPC auth token not set; mutating methods will be rejected",
			slog.String("env_var", cfg.RPCAuthTokenEnv))
	}
	jwtSecret := cfg.AdminJWTSecret()
	if jwtSecret == "" {
		logger.Warn("admin JWT secret not set; admin methods will be rejected",
			slog.String("env_var", cfg.AdminJWTSecretEnv))
	}
	logger.Info("rpc authentication configured",
		logging.MaskField("auth_token", authToken),
		logging.MaskField("jwt_secret", jwtSecret),
	)

	rpcServer := rpc.NewServer(ledger, rpc.ServerConfig{
		AuthToken:      authToken,
		AdminJWTSecret: jwtSecret,
		AdminJWTIssuer: cfg.AdminJWTIssuer,
		RatePerMinute:  cfg.RateLimitPerMinute,
		RateBurst:      cfg.RateLimitBurst,
	})

	rpcHTTP := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           otelhttp.NewHandler(rpcServer.Router(), "littercoind.rpc"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	opsHTTP := &http.Server{
		Addr:              cfg.OpsAddress,
		Handler:           opsRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("serving JSON-RPC", slog.String("addr", cfg.RPCAddress))
		if err := rpcHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		logger.Info("serving ops endpoints", slog.String("addr", cfg.OpsAddress))
		if err := opsHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()

	if err := waitForStartup(cfg.RPCAddress, errCh, 5*time.Second); err != nil {
		logger.Error("RPC server failed to start", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("littercoind initialised and running")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server terminated", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rpcHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc shutdown failed", slog.Any("error", err))
	}
	if err := opsHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops shutdown failed", slog.Any("error", err))
	}
	logger.Info("littercoind stopped")
}

// buildOracle wires the configured price source. The returned stop function
// halts any background refresh and is safe to call exactly once.
func buildOracle(cfg *config.Config, params coin.Params) (coin.PriceOracle, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Oracle.Mode)) {
	case "manual":
		manual := coin.NewManualOracle()
		if err := manual.SetDecimal(cfg.Oracle.ManualPrice, params.OracleDecimals, time.Now()); err != nil {
			return nil, nil, fmt.Errorf("seed manual price: %w", err)
		}
		stop := refreshManualQuote(manual, cfg.Oracle.ManualPrice, params)
		return manual, stop, nil
	case "coingecko":
		gecko := coin.NewCoinGeckoOracle(nil, cfg.Oracle.Endpoint, cfg.Oracle.AssetID, cfg.Oracle.Currency, params.OracleDecimals)
		if price := strings.TrimSpace(cfg.Oracle.ManualPrice); price != "" {
			manual := coin.NewManualOracle()
			if err := manual.SetDecimal(price, params.OracleDecimals, time.Now()); err != nil {
				return nil, nil, fmt.Errorf("seed fallback price: %w", err)
			}
			stop := refreshManualQuote(manual, price, params)
			return coin.NewFallbackOracle(gecko, manual), stop, nil
		}
		return gecko, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown oracle mode %q", cfg.Oracle.Mode)
	}
}

// refreshManualQuote re-stamps the pinned price on an interval shorter than
// the staleness window, so a standing operator declaration never expires while
// the daemon runs.
func refreshManualQuote(oracle *coin.ManualOracle, price string, params coin.Params) func() {
	interval := params.MaxQuoteAge / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := oracle.SetDecimal(price, params.OracleDecimals, time.Now()); err != nil {
					slog.Warn("manual quote refresh failed", slog.Any("error", err))
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func opsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// waitForStartup polls the RPC listen address until it accepts connections,
// bailing out early if either server goroutine reports a startup failure.
func waitForStartup(addr string, errCh <-chan error, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	dialAddr := dialAddressFor(addr)
	for {
		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for listener on %s", dialAddr)
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", dialAddr, 200*time.Millisecond)
			if err == nil {
				conn.Close()
				return nil
			}
		}
	}
}

func dialAddressFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if strings.TrimSpace(host) == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
