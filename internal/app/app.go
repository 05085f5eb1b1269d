// Package app composes the menu bot: dialog engine, transports, observers
// and the operator API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/m3rciful/menubot/core/bootstrap"
	"github.com/m3rciful/menubot/core/buildinfo"
	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/dialog"
	"github.com/m3rciful/menubot/core/dispatch"
	"github.com/m3rciful/menubot/core/handoff"
	"github.com/m3rciful/menubot/core/httpapi"
	"github.com/m3rciful/menubot/core/journal"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/menu"
	coretelegram "github.com/m3rciful/menubot/core/telegram"
	tghelpers "github.com/m3rciful/menubot/core/telegram/helpers"
	"github.com/m3rciful/menubot/core/telegram/router"
	"github.com/m3rciful/menubot/core/webchat"

	"golang.org/x/sync/errgroup"
)

// App holds every long-lived component of a running bot.
type App struct {
	cfg   *coreconfig.Config
	infra *bootstrap.Result

	jobs     *dispatch.Dispatcher
	events   *dispatch.Dispatcher
	engine   *dialog.Engine
	outbound *coretelegram.Outbound
	hub      *webchat.Hub
	journal  *journal.Journal
	handoffs *handoff.Queue
	watcher  *menu.Watcher

	closeOnce sync.Once
}

// New runs the bootstrap pipeline and builds the app on top of it.
func New(ctx context.Context, cfg *coreconfig.Config) (*App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	a, err := Build(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

// Build wires components over already initialized infrastructure.
func Build(cfg *coreconfig.Config, infra *bootstrap.Result) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if infra == nil {
		infra = &bootstrap.Result{}
	}

	catalog, err := menu.Load(cfg.Dialog.MenuFile)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{cfg: cfg, infra: infra}
	queueOpts := dispatch.Options{
		QueueSize:    cfg.Sender.QueueSize,
		Workers:      cfg.Sender.Workers,
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryBackoff: time.Duration(cfg.Sender.RetryBackoffMS) * time.Millisecond,
		MaxDuration:  time.Duration(cfg.Sender.MaxDurationMS) * time.Millisecond,
	}
	// Replies and observer writes use separate pools so a stalled
	// database or redis never holds up chat sends.
	a.jobs = dispatch.New(queueOpts)
	a.events = dispatch.New(queueOpts)

	mux := dialog.NewSenderMux()
	if cfg.Telegram.Enabled() {
		a.outbound = coretelegram.NewOutbound(a.jobs)
		mux.Handle(tghelpers.Transport, a.outbound)
	}

	var observers []dialog.Observer
	if infra.DB != nil {
		a.journal, err = journal.New(infra.DB, a.events)
		if err != nil {
			a.closeQueues()
			return nil, fmt.Errorf("app: %w", err)
		}
		observers = append(observers, a.journal)
	}
	if infra.Redis != nil {
		a.handoffs, err = handoff.NewQueue(infra.Redis, cfg.Redis.HandoffQueue, a.events, cfg.Dialog.HandoffTimeout())
		if err != nil {
			a.closeQueues()
			return nil, fmt.Errorf("app: %w", err)
		}
		observers = append(observers, a.handoffs)
	}

	a.engine, err = dialog.NewEngine(dialog.Options{
		Store:             dialog.NewMemoryStore(),
		Catalog:           catalog,
		Scheduler:         dialog.NewScheduler(),
		Sender:            mux,
		HandoffTimeout:    cfg.Dialog.HandoffTimeout(),
		HandoffTokens:     cfg.Dialog.HandoffTokens,
		CloseToken:        cfg.Dialog.CloseToken,
		HandoffCloseReply: dialog.CloseReply(cfg.Dialog.HandoffCloseReply),
		Observers:         observers,
	})
	if err != nil {
		a.closeQueues()
		return nil, fmt.Errorf("app: %w", err)
	}

	if cfg.WebChat.Enabled {
		a.hub = webchat.NewHub(a.engine, a.jobs)
		mux.Handle(webchat.Transport, a.hub)
	}
	if cfg.Dialog.WatchMenu {
		a.watcher = menu.NewWatcher(cfg.Dialog.MenuFile, a.engine)
	}

	logger.Info(context.Background(), "app", "wired",
		slog.Any("transports", mux.Transports()),
		slog.Bool("journal", a.journal != nil),
		slog.Bool("handoff_queue", a.handoffs != nil),
		slog.Int("menu_options", len(catalog.Options())),
	)
	return a, nil
}

// Engine returns the dialog engine.
func (a *App) Engine() *dialog.Engine { return a.engine }

// Stats snapshots session and queue counters for operators.
func (a *App) Stats() router.Stats {
	sessions := make(map[dialog.State]int)
	for _, s := range a.engine.Store().List() {
		sessions[s.State]++
	}
	return router.Stats{
		Sessions:      sessions,
		PendingTimers: a.engine.Scheduler().Len(),
		QueuePending:  a.jobs.Pending() + a.events.Pending(),
		JobFailures:   a.jobs.ErrorCount() + a.events.ErrorCount(),
	}
}

// Handler builds the operator API, including the websocket chat when enabled.
func (a *App) Handler() http.Handler {
	deps := httpapi.Deps{
		Sessions: a.engine.Store(),
		Catalog:  a.engine.Catalog,
		Version:  buildinfo.Version,
	}
	if a.journal != nil {
		deps.Transitions = a.journal
	}
	if a.handoffs != nil {
		deps.Handoffs = a.handoffs
	}
	if a.hub != nil {
		deps.WebChat = a.hub
		deps.WebChatPath = a.cfg.WebChat.Path
	}
	return httpapi.NewRouter(deps)
}

// TelegramOptions assembles commands, routes and middleware for the bot.
func (a *App) TelegramOptions() coretelegram.RunOptions {
	reg := coretelegram.NewRegistry()
	reg.RegisterCommand("/start", router.StartCommand(a.engine, ""))
	if a.cfg.Telegram.AdminID != 0 {
		reg.RegisterCommand("/stats", router.StatsCommand(a.Stats))
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
		// Non-admins typing /stats are treated like any other message.
		OnAdminReject: router.DialogHandler(a.engine),
	})
	routes = append(routes, router.TextRoutes(a.engine)...)

	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Outbound:    a.outbound,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
	}
}

// Run serves every configured transport until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			return fmt.Errorf("app: menu watcher: %w", err)
		}
	}

	var tasks []func(context.Context) error
	if a.cfg.Telegram.Enabled() {
		opts := a.TelegramOptions()
		tasks = append(tasks, func(ctx context.Context) error {
			return coretelegram.RunTelegram(ctx, opts)
		})
	}
	if a.cfg.HTTP.Listen != "" {
		srv := httpapi.NewServer(a.cfg.HTTP.Listen, a.Handler())
		tasks = append(tasks, srv.Run)
	}
	if len(tasks) == 0 {
		return errors.New("app: nothing to run")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			// Cancellation is a clean stop.
			if err := task(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Close stops timers, drains queued jobs and releases backends.
func (a *App) Close(_ context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.hub != nil {
			a.hub.Close()
		}
		a.engine.Scheduler().Stop()
		a.closeQueues()
		logger.Info(context.Background(), "app", "jobs.drained",
			slog.Uint64("completed", a.jobs.Completed()),
			slog.Uint64("failed", a.jobs.ErrorCount()),
			slog.Uint64("events_completed", a.events.Completed()),
			slog.Uint64("events_failed", a.events.ErrorCount()),
		)
		err = a.infra.Close()
	})
	return err
}

func (a *App) closeQueues() {
	a.jobs.Close()
	a.events.Close()
}
