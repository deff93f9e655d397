// cmd/web/main.go
//
// reveal – HTTP and chat-bot entry point.
//
// Start-up sequence
// -----------------
//
//  1. Console logger for the config window, then config.Load (defaults,
//     conf/.env, conf/global.yaml, REVEAL_* env, legacy env, vault refs).
//
//  2. Daily rotating logger (tees to console when running in a TTY).
//
//  3. Record Store: open the configured external backend (MySQL or
//     MongoDB) and hand it to the store switch with an in-memory fallback.
//
//  4. Countdown gate, command handler, notification dispatcher, and the
//     Telegram bot when polling is enabled.
//
//  5. Status API router wrapped by the HTTP server.
//
//  6. Server, bot, dispatcher, and store prober run under one errgroup
//     bound to SIGINT/SIGTERM.  Shutdown is graceful.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/reveal/internal/api"
	"github.com/yanizio/reveal/internal/cache"
	"github.com/yanizio/reveal/internal/command"
	"github.com/yanizio/reveal/internal/config"
	"github.com/yanizio/reveal/internal/database"
	"github.com/yanizio/reveal/internal/gate"
	"github.com/yanizio/reveal/internal/logger"
	"github.com/yanizio/reveal/internal/message"
	"github.com/yanizio/reveal/internal/requestinfo"
	"github.com/yanizio/reveal/internal/server"
	"github.com/yanizio/reveal/internal/store"
	"github.com/yanizio/reveal/internal/store/memory"
	"github.com/yanizio/reveal/internal/store/mongostore"
	"github.com/yanizio/reveal/internal/store/sqlstore"
	"github.com/yanizio/reveal/internal/telegram"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	boot := logger.Bootstrap()
	if err := run(); err != nil {
		boot.Fatalw("reveal exited", "err", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Config and logger ───────────────────────────────────────────
	//
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logDir := cfg.Log.Dir
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(cfg.Paths.Root, logDir)
	}
	log, err := logger.New(logDir, cfg.Log.Level, runningInTTY())
	if err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	loc, err := time.LoadLocation(cfg.Gate.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	//
	// ── 2.  Record Store ────────────────────────────────────────────────
	//
	ext, err := openExternal(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	sw := store.New(ctx, ext, memory.New(), store.Options{
		ProbeInterval: cfg.Store.ProbeInterval,
		OpTimeout:     cfg.Store.OpTimeout,
	}, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sw.Close(closeCtx); err != nil {
			log.Warnw("store close failed", "err", err)
		}
	}()

	//
	// ── 3.  Gate, commands, notifications, bot ──────────────────────────
	//
	// The dispatcher's sink is the bot, and the bot's commands sit on the
	// gate, so the gate reaches the dispatcher through a func.
	var disp *message.Dispatcher
	g := gate.New(sw, log, gate.WithNotifier(gate.NotifyFunc(func(text string) {
		disp.Notify(text)
	})))
	cmds := command.New(g, sw, loc, log)

	var sink message.Sink = message.LogSink{Log: log}
	var bot *telegram.Bot
	switch {
	case cfg.Telegram.Enabled():
		tg, err := telegram.Connect(cfg.Telegram.Token)
		if err != nil {
			log.Errorw("telegram bot unavailable, notifications go to the log", "err", err)
			break
		}
		bot = telegram.New(tg, cmds, sw, telegram.Options{
			AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
			NotifyChatIDs:  cfg.Telegram.NotifyChatIDs,
			Heartbeat:      cfg.Telegram.Heartbeat,
		}, log)
		sink = bot
		log.Infow("telegram bot online", "user", tg.Self.UserName)
	case cfg.Telegram.Token != "":
		log.Infow("telegram polling disabled")
	}
	disp = message.NewDispatcher(sink, message.Options{
		QueueSize:   cfg.Notify.QueueSize,
		SendTimeout: cfg.Notify.SendTimeout,
	}, log)

	//
	// ── 4.  Visitor tracking ────────────────────────────────────────────
	//
	visitors, err := requestinfo.NewResolver(cfg.Visitor.GeoIPDB)
	if err != nil {
		log.Warnw("geoip disabled", "path", cfg.Visitor.GeoIPDB, "err", err)
		visitors, _ = requestinfo.NewResolver("")
	}
	defer visitors.Close()

	var dedupe *cache.LRU
	if cfg.Visitor.DedupeWindow > 0 {
		dedupe = cache.New(cfg.Visitor.CacheSize, cfg.Visitor.DedupeWindow)
	}

	//
	// ── 5.  HTTP ────────────────────────────────────────────────────────
	//
	staticDir := cfg.HTTP.StaticDir
	if staticDir != "" && !filepath.IsAbs(staticDir) {
		staticDir = filepath.Join(cfg.Paths.Root, staticDir)
	}
	handler := api.NewRouter(api.Deps{
		Gate:       g,
		Bots:       sw,
		Store:      sw,
		Notifier:   disp,
		Visitors:   visitors,
		Dedupe:     dedupe,
		Env:        cfg.App.Env,
		TelegramOK: !cfg.Telegram.Enabled() || bot != nil,
		StaticDir:  staticDir,
		ForceHTTPS: cfg.HTTP.ForceHTTPS,
		Log:        log,
	})
	srv := server.New(cfg.HTTP.ListenAddr, handler)

	//
	// ── 6.  Run until signalled ─────────────────────────────────────────
	//
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return server.Run(gctx, srv, log) })
	grp.Go(func() error { return disp.Run(gctx) })
	grp.Go(func() error { return sw.Run(gctx) })
	if bot != nil {
		grp.Go(func() error { return bot.Run(gctx) })
	}

	err = grp.Wait()
	log.Infow("shutdown complete", "err", err)
	return err
}

// openExternal builds the configured external backend without requiring it
// to be reachable.  It returns nil for the memory-only setup.
func openExternal(ctx context.Context, sc config.Store, log *zap.SugaredLogger) (store.Backend, error) {
	switch sc.Resolved() {
	case "mysql":
		opts := database.DefaultOptions()
		opts.MaxOpenConns = sc.MaxOpenConns
		db, err := database.Open(sc.MySQLDSN, opts)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, sc.OpTimeout*time.Duration(opts.Retries+1))
		defer cancel()
		if err := database.PingWithRetry(pingCtx, db, opts); err != nil {
			log.Warnw("mysql not answering at boot", "err", err)
		}
		return sqlstore.New(db), nil

	case "mongo":
		s, err := mongostore.Open(ctx, sc.MongoURI, sc.MongoDatabase, sc.OpTimeout)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return s, nil
	}
	return nil, nil
}
