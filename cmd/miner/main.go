// Command miner is a standalone RandomX proof-of-work miner: it polls a
// node's JSON-RPC interface for block templates, hashes candidate headers
// across a pool of RandomX VMs, and submits any block it solves.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"log/slog"

	"github.com/zecrx/randomx-miner/internal/config"
	"github.com/zecrx/randomx-miner/internal/engine"
	"github.com/zecrx/randomx-miner/internal/header"
	"github.com/zecrx/randomx-miner/internal/logging"
	"github.com/zecrx/randomx-miner/internal/metrics"
	"github.com/zecrx/randomx-miner/internal/numa"
	"github.com/zecrx/randomx-miner/internal/randomx"
	"github.com/zecrx/randomx-miner/internal/rpcclient"
	"github.com/zecrx/randomx-miner/internal/status"
)

func main() {
	cfg := config.Default()
	fs := flag.NewFlagSet("miner", flag.ContinueOnError)
	flags := config.BindFlags(fs, cfg)

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if flags.Help {
		fs.Usage()
		os.Exit(0)
	}
	if flags.ConfigFile != "" {
		fileCfg, err := config.LoadFile(flags.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "miner: %v\n", err)
			os.Exit(1)
		}
		*cfg = *fileCfg
		// Flags parsed above win over the file; re-parse onto the merged config.
		fs2 := flag.NewFlagSet("miner", flag.ContinueOnError)
		config.BindFlags(fs2, cfg)
		_ = fs2.Parse(os.Args[1:])
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "miner: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(logging.Options{
		Debug:      cfg.Logging.Debug,
		LogFile:    cfg.Logging.LogFile,
		LogConsole: cfg.Logging.LogConsole,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "miner: failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	printBanner()

	if cfg.Mining.Threads <= 0 {
		cfg.Mining.Threads = runtime.NumCPU()
	}

	var met *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		met = metrics.New("")
	}

	rpcCfg := rpcclient.DefaultConfig(cfg.RPC.URL, cfg.RPC.User, cfg.RPC.Password)
	rpcCfg.Logger = logger
	rpcCfg.Metrics = met
	rpc := rpcclient.New(rpcCfg)

	topo := numa.Discover()
	mode := randomx.SelectMode(cfg.Mining.FastMode, topo)
	pool := randomx.NewPool(mode, cfg.Mining.Threads, topo)
	defer pool.Close()

	eng := engine.New(pool, logger)

	loop := &controlLoop{
		cfg:    cfg,
		rpc:    rpc,
		pool:   pool,
		engine: eng,
		logger: logger.With("component", "control-loop"),
		met:    met,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if met != nil {
		feed := status.NewFeed(statusSource{loop: loop}, 2*time.Second, logger)
		go feed.Run(ctx)
		go serveOpsEndpoints(ctx, cfg.Metrics.Addr, met, feed, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	loop.run(ctx)

	logger.Info("miner stopped")
}

// serveOpsEndpoints runs a single HTTP server exposing Prometheus metrics
// and the live status WebSocket feed on addr, until ctx is cancelled.
func serveOpsEndpoints(ctx context.Context, addr string, met *metrics.Metrics, feed *status.Feed, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	mux.HandleFunc("/ws/status", feed.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		_ = srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Warn("ops endpoint server stopped", "error", err)
		}
	}
}

func printBanner() {
	fmt.Println()
	fmt.Println("  randomx-miner - standalone RandomX proof-of-work miner")
	fmt.Println()
}

// controlLoop owns the RPC/UI loop described in spec.md §5: it fetches
// templates, starts/stops mining sessions, submits solutions, and tracks
// the chain tip to detect stale work.
type controlLoop struct {
	cfg    *config.Config
	rpc    *rpcclient.Client
	pool   *randomx.Pool
	engine *engine.Engine
	logger *slog.Logger
	met    *metrics.Metrics

	lastHeight    uint32
	currentTmpl   *header.BlockTemplate
	rpcFailures   int
	disconnected  bool
	lastHashCount uint64

	networkSolPS  float64
	difficulty    float64
	walletBalance float64
}

func (l *controlLoop) run(ctx context.Context) {
	templateTicker := time.NewTicker(l.cfg.Mining.UpdateInterval)
	defer templateTicker.Stop()

	tipTicker := time.NewTicker(l.cfg.Mining.BlockCheck)
	defer tipTicker.Stop()

	solutionTicker := time.NewTicker(50 * time.Millisecond)
	defer solutionTicker.Stop()

	metricsTicker := time.NewTicker(time.Second)
	defer metricsTicker.Stop()

	l.fetchAndStart(ctx)
	l.pollInfo(ctx)

	for {
		select {
		case <-ctx.Done():
			l.engine.Stop()
			return

		case <-templateTicker.C:
			l.fetchAndStart(ctx)
			l.pollInfo(ctx)

		case <-tipTicker.C:
			l.checkTip(ctx)

		case <-solutionTicker.C:
			if sol, ok := l.engine.GetSolution(); ok {
				l.submitSolution(ctx, sol)
				l.fetchAndStart(ctx)
			}

		case <-metricsTicker.C:
			l.sampleMetrics()
		}
	}
}

// fetchAndStart fetches a fresh template and (re)starts mining on it. An
// RPC failure is only counted by onRPCFailure; the node is tried again on
// the next template tick or by checkTip, whose first success after a
// disconnect calls fetchAndStart again.
func (l *controlLoop) fetchAndStart(ctx context.Context) {
	doc, err := l.rpc.GetBlockTemplate(ctx)
	if err != nil {
		l.onRPCFailure(err)
		return
	}
	l.rpcFailures = 0
	l.disconnected = false
	if l.met != nil {
		l.met.SetConnected(true)
	}

	tmpl, err := header.DecodeTemplate(doc)
	if err != nil {
		l.logger.Error("failed to decode block template", "error", err)
		return
	}

	if l.engine.IsMining() && l.currentTmpl != nil && l.currentTmpl.Height == tmpl.Height {
		return // no new work since the last fetch
	}

	l.engine.Stop()

	seed := [randomx.KeySize]byte(tmpl.SeedHash)
	if !l.pool.IsInitialized() {
		if err := l.pool.Init(seed); err != nil {
			l.logger.Error("failed to initialize randomx pool", "error", err)
			return
		}
	} else if l.pool.CurrentSeed() != seed {
		if err := l.pool.UpdateSeed(seed, l.engine); err != nil {
			l.logger.Error("failed to update randomx seed", "error", err)
			return
		}
	}

	if err := l.engine.StartMining(tmpl); err != nil {
		l.logger.Error("failed to start mining", "error", err)
		return
	}

	l.currentTmpl = tmpl
	l.lastHeight = tmpl.Height
	l.lastHashCount = 0

	epoch := randomx.SeedHeight(uint64(tmpl.Height))
	l.logger.Info("mining new template", "height", tmpl.Height, "randomx_epoch", epoch)
}

// checkTip implements tip-change detection: if the chain has advanced past
// the in-flight template's height, work is refreshed immediately even if
// --update-interval has not elapsed yet.
func (l *controlLoop) checkTip(ctx context.Context) {
	info, err := l.rpc.GetBlockchainInfo(ctx)
	if err != nil {
		l.onRPCFailure(err)
		return
	}
	l.rpcFailures = 0
	wasDisconnected := l.disconnected
	l.disconnected = false
	if l.met != nil {
		l.met.SetConnected(true)
		l.met.ChainTipHeight.Set(float64(info.Blocks))
	}

	if wasDisconnected || uint32(info.Blocks) > l.lastHeight {
		l.fetchAndStart(ctx)
	}
}

func (l *controlLoop) onRPCFailure(err error) {
	l.rpcFailures++
	l.logger.Warn("rpc call failed", "error", err, "consecutive_failures", l.rpcFailures)
	if l.met != nil {
		l.met.SetConnected(false)
	}
	if l.rpcFailures >= 2 {
		l.engine.Stop()
		l.disconnected = true
	}
}

// pollInfo fetches getmininginfo (always) and getwalletinfo (unless
// --no-balance is set) on the update cadence and keeps both for the status
// feed; the wallet balance is also logged and exported as a metrics gauge.
func (l *controlLoop) pollInfo(ctx context.Context) {
	if info, err := l.rpc.GetMiningInfo(ctx); err != nil {
		l.logger.Warn("failed to fetch mining info", "error", err)
	} else {
		l.networkSolPS = info.NetworkSolPS
		l.difficulty = info.Difficulty
	}

	if l.cfg.Mining.NoBalance {
		return
	}

	wallet, err := l.rpc.GetWalletInfo(ctx)
	if err != nil {
		l.logger.Warn("failed to fetch wallet info", "error", err)
		return
	}
	l.walletBalance = wallet.Balance
	l.logger.Info("wallet balance", "balance", wallet.Balance)
	if l.met != nil {
		l.met.WalletBalance.Set(wallet.Balance)
	}
}

// sampleMetrics pushes the engine's running hash count and hashrate into
// the Prometheus counters/gauge.
func (l *controlLoop) sampleMetrics() {
	if l.met == nil {
		return
	}
	hashCount := l.engine.HashCount()
	if hashCount >= l.lastHashCount {
		l.met.HashesTotal.Add(float64(hashCount - l.lastHashCount))
	}
	l.lastHashCount = hashCount
	l.met.Hashrate.Set(l.engine.Hashrate())
}

func (l *controlLoop) submitSolution(ctx context.Context, sol engine.Solution) {
	if l.met != nil {
		l.met.SolutionsFound.Inc()
	}

	blockHex, err := header.BuildSubmission(sol.Template, sol.FullHeader, sol.PowHash)
	if err != nil {
		l.logger.Error("failed to build block submission", "error", err)
		return
	}

	if err := l.rpc.SubmitBlock(ctx, hex.EncodeToString(blockHex)); err != nil {
		l.logger.Error("block submission rejected", "error", err, "height", sol.Template.Height)
		if l.met != nil {
			l.met.BlocksRejected.Inc()
		}
		return
	}

	l.logger.Info("block accepted", "height", sol.Template.Height)
	if l.met != nil {
		l.met.BlocksAccepted.Inc()
	}
}

// statusSource adapts a controlLoop into status.Source for the live
// WebSocket feed.
type statusSource struct {
	loop *controlLoop
}

func (s statusSource) Snapshot() status.Snapshot {
	height := uint32(0)
	if s.loop.currentTmpl != nil {
		height = s.loop.currentTmpl.Height
	}
	return status.Snapshot{
		Mining:        s.loop.engine.IsMining(),
		Height:        height,
		Hashrate:      s.loop.engine.Hashrate(),
		HashCount:     s.loop.engine.HashCount(),
		NetworkSolPS:  s.loop.networkSolPS,
		Difficulty:    s.loop.difficulty,
		WalletBalance: s.loop.walletBalance,
		Connected:     s.loop.rpcFailures == 0,
		Timestamp:     time.Now().Unix(),
	}
}
