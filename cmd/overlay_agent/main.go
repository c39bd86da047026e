package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/pm_agent/internal/api"
	"github.com/dgnsrekt/pm_agent/internal/browser"
	"github.com/dgnsrekt/pm_agent/internal/capture"
	"github.com/dgnsrekt/pm_agent/internal/config"
	"github.com/dgnsrekt/pm_agent/internal/controller"
	"github.com/dgnsrekt/pm_agent/internal/lifecycle"
	"github.com/dgnsrekt/pm_agent/internal/metrics"
	"github.com/dgnsrekt/pm_agent/internal/netutil"
	"github.com/dgnsrekt/pm_agent/internal/overlay"
	"github.com/dgnsrekt/pm_agent/internal/pagecontrol"
	"github.com/dgnsrekt/pm_agent/internal/recommend"
	"github.com/dgnsrekt/pm_agent/internal/syncstore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("overlay agent config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"tab_url_filter", cfg.TabURLFilter,
		"backend_url", cfg.BackendURL,
		"redis_addr", cfg.RedisAddr,
		"capture_market_data", cfg.CaptureMarketData,
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(rootCtx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		if launcher.Running() {
			defer launcher.Stop()
		}
	}

	kv := buildKV(rootCtx, cfg)
	records := syncstore.NewRecords(syncstore.NewQuotaKV(kv))
	store := overlay.NewStore(records)
	defer store.Close()

	pages := pagecontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	if err := pages.Connect(rootCtx); err != nil {
		slog.Error("failed to connect to CDP", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := pages.Close(); err != nil {
			slog.Debug("page client close failed", "error", err)
		}
	}()

	backend := recommend.NewClient(cfg.BackendURL, time.Duration(cfg.BackendTimeoutMS)*time.Millisecond)
	met := metrics.New()

	lc := lifecycle.NewController(pages, store, records, backend, met,
		time.Duration(cfg.PollIntervalMS)*time.Millisecond)
	lc.Start(rootCtx)
	defer lc.Stop()

	if cfg.CaptureMarketData {
		journal := capture.NewJournal(cfg.DataDir, "market_data", cfg.JournalBufferSize, cfg.JournalMaxFileSizeMB)
		watch := capture.NewTradeWatch(cfg.CDPURL(), cfg.TabURLFilter, journal)
		if err := watch.Start(rootCtx); err != nil {
			slog.Error("failed to start market-data capture", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := watch.Close(); err != nil {
				slog.Debug("trade watch close failed", "error", err)
			}
		}()
	}

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, true)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	svc := controller.NewService(pages, store, records, backend)
	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, met)}

	go func() {
		slog.Info("overlay agent listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("control API server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("control API shutdown failed", "error", err)
	}
}

// buildKV picks the synced-storage substrate. Redis when configured and
// reachable, otherwise in-memory.
func buildKV(ctx context.Context, cfg *config.Config) syncstore.KV {
	if cfg.RedisAddr == "" {
		slog.Info("no redis configured, using in-memory storage")
		return syncstore.NewMemoryKV()
	}
	rkv := syncstore.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rkv.Ping(pingCtx); err != nil {
		slog.Warn("redis unreachable, falling back to in-memory storage",
			"addr", cfg.RedisAddr, "error", err)
		return syncstore.NewMemoryKV()
	}
	slog.Info("redis storage connected", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
	return rkv
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
