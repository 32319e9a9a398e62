// Command chatdeck runs the browser-session automation daemon: it monitors
// chat-service login status across browser profiles, sends messages and
// attachments through the running browser sessions, and exposes an HTTP and
// WebSocket API for clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/busy"
	"github.com/chatdeck/chatdeck/internal/classify"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/logging"
	"github.com/chatdeck/chatdeck/internal/monitor"
	"github.com/chatdeck/chatdeck/internal/notify"
	"github.com/chatdeck/chatdeck/internal/send"
	"github.com/chatdeck/chatdeck/internal/store"
	"github.com/chatdeck/chatdeck/internal/web"
)

const Version = "0.3.0"

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatdeck: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".chatdeck", "config.toml")
}

// resolvePath anchors relative store paths next to the config file so a
// custom -config location keeps its data together.
func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func run() error {
	configPath := flag.String("config", defaultConfigPath(), "Path to the TOML config file")
	listenAddr := flag.String("listen", "", "Listen address override for the web server")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatdeck %s\n", Version)
		return nil
	}

	baseDir := filepath.Dir(*configPath)
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	level := "info"
	if *debug {
		level = "debug"
	}
	logging.Init(logging.Config{
		LogDir: filepath.Join(baseDir, "logs"),
		Level:  level,
	})
	defer logging.Shutdown()
	log := logging.Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Defaults still apply; the daemon stays up so the file can be fixed
		// and hot-reloaded.
		log.Warn("config_load_failed", slog.String("error", err.Error()))
	}
	if *listenAddr != "" {
		cfg.Web.Addr = *listenAddr
	}

	db, err := store.Open(resolvePath(baseDir, cfg.Store.DBPath))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	provider := browser.NewRemoteProvider(cfg.Browser.ProviderURL)
	coord := busy.NewCoordinator()
	checker := classify.NewChecker(provider, cfg.ClassifyOptions())
	pipeline := send.NewPipeline(cfg.SendConfig(), provider, coord)

	subs := notify.NewSubscriptionStore(resolvePath(baseDir, cfg.Store.SubscriptionsPath))
	pusher, err := notify.NewPusher(cfg.PushConfig(), subs)
	if err != nil {
		return fmt.Errorf("web push: %w", err)
	}
	bridge := notify.NewBridge(pusher)

	sched := monitor.NewScheduler(cfg.MonitorConfig(), db, checker, coord, provider, bridge)

	server := web.NewServer(web.Config{
		ListenAddr: cfg.Web.Addr,
		Token:      cfg.Web.Token,
	}, web.Deps{
		Accounts:  db,
		Sender:    pipeline,
		Checker:   checker,
		Scheduler: sched,
		Push:      pusher,
		Subs:      subs,
	})
	bridge.AddBroadcaster(server.Hub())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accounts, err := db.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, a := range accounts {
		if a.Enabled {
			sched.AddAccount(a)
		}
	}
	log.Info("daemon_started",
		slog.String("version", Version),
		slog.String("addr", server.Addr()),
		slog.Int("accounts", len(accounts)),
		slog.Bool("push_enabled", pusher.Enabled()))

	sched.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		return config.Watch(gctx, *configPath, func(next config.Config) {
			mc := next.MonitorConfig()
			for svc, interval := range mc.Intervals {
				sched.SetInterval(svc, interval)
			}
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("daemon_stopped")
	return err
}
