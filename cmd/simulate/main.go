package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/okian/gauntlet/internal/adapters/http/api"
	"github.com/okian/gauntlet/internal/adapters/provider"
	"github.com/okian/gauntlet/internal/adapters/repository"
	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/simulation"
	"github.com/okian/gauntlet/pkg/logger"
)

// Default configuration constants.
const (
	defaultMatches  = 4
	defaultBettors  = 3
	defaultStake    = 100
	defaultBalance  = 10000
	defaultTriggers = 4
	defaultTimeout  = 30 * time.Second
	runTimeout      = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "", "Base URL of a running service (default: start one in-process)")
		matches  = flag.Int("matches", defaultMatches, "Number of matches to play")
		workers  = flag.Int("workers", runtime.NumCPU(), "Matches played concurrently")
		bettors  = flag.Int("bettors", defaultBettors, "Bettor accounts per match")
		stake    = flag.Int64("stake", defaultStake, "Amount each bettor stakes")
		balance  = flag.Int64("balance", defaultBalance, "Opening balance of each bettor")
		triggers = flag.Int("triggers", defaultTriggers, "Concurrent duplicate triggers per stage")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose  = flag.Bool("verbose", false, "Log every stage")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(*baseURL, &simulation.Config{
		Matches:  *matches,
		Workers:  *workers,
		Bettors:  *bettors,
		Stake:    *stake,
		Balance:  *balance,
		Triggers: *triggers,
		Timeout:  *timeout,
		Verbose:  *verbose,
	}); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(baseURL string, cfg *simulation.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg.BaseURL = baseURL
	if baseURL == "" {
		url, stop, err := startLocal(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = stop(context.WithoutCancel(ctx)) }()
		cfg.BaseURL = url
	}
	_, err := simulation.Run(ctx, cfg)
	return err
}

// startLocal serves an in-memory engine with a simulated decision provider
// on a loopback port.
func startLocal(ctx context.Context) (string, func(context.Context) error, error) {
	log := logger.Get()
	engine := service.New(repository.NewMemoryStore(),
		service.WithLogger(log.Named("engine")),
		service.WithCollector(decision.NewCollector(
			decision.WithProvider(provider.NewSimulatedProvider()),
			decision.WithLogger(log.Named("decision")),
		)),
	)
	if err := engine.Start(ctx); err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	api.NewServer(engine, engine.Ledger(), engine).Register(ctx, mux)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = engine.Stop(ctx)
		return "", nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "local server failed", logger.Error(err))
		}
	}()
	log.Info(ctx, "in-process service listening", logger.String("addr", ln.Addr().String()))

	stop := func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), engine.Stop(ctx))
	}
	return "http://" + ln.Addr().String(), stop, nil
}
