package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quayhaven/quaydesk/internal/bot"
	"github.com/quayhaven/quaydesk/internal/dashboard"
	"github.com/quayhaven/quaydesk/internal/db"
	"github.com/quayhaven/quaydesk/internal/gateway"
	"github.com/quayhaven/quaydesk/internal/gateway/discord"
	"github.com/quayhaven/quaydesk/internal/mirror"
	"github.com/quayhaven/quaydesk/internal/ticket"
	"github.com/spf13/cobra"
)

// registerRetries bounds how long start waits for the gateway Ready
// payload before command registration gives up.
const (
	registerRetries  = 10
	registerInterval = 500 * time.Millisecond
)

func newStartCmd() *cobra.Command {
	var (
		configPath  string
		noDashboard bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the ticket bot",
		Long:  "Connects to Discord, registers the slash commands, and serves tickets until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath, noDashboard)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "quaydesk.yaml", "path to QuayDesk config file")
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not start the web dashboard")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string, noDashboard bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	store, err := ticket.NewStore(gormDB)
	if err != nil {
		return err
	}
	limiter, err := ticket.NewRateLimiter(ticket.RateLimiterOpts{})
	if err != nil {
		return err
	}
	correlator, err := gateway.NewCorrelator(gateway.CorrelatorOpts{})
	if err != nil {
		return err
	}

	adapter, err := discord.New(discord.AdapterOpts{
		BotToken: cfg.Discord.Token,
		GuildID:  cfg.Discord.GuildID,
	})
	if err != nil {
		return err
	}

	var m ticket.Mirror
	if cfg.Slack.Enabled() {
		slackMirror, err := mirror.NewSlack(mirror.SlackOpts{
			BotToken:  cfg.Slack.Token,
			ChannelID: cfg.Slack.Channel,
		})
		if err != nil {
			return err
		}
		m = slackMirror
		fmt.Fprintln(out, "Slack mirror enabled")
	}

	workflow, err := ticket.NewWorkflow(ticket.WorkflowOpts{
		Store:     store,
		Limiter:   limiter,
		Messenger: adapter,
		Tickets:   cfg.Tickets,
		Mirror:    m,
	})
	if err != nil {
		return err
	}

	b, err := bot.New(bot.Opts{
		Workflow:   workflow,
		Store:      store,
		Platform:   adapter,
		Correlator: correlator,
	})
	if err != nil {
		return err
	}
	dispatcher, err := gateway.NewDispatcher(gateway.DispatcherOpts{
		Registry:   b.Registry(),
		Interactor: adapter,
		Correlator: correlator,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.Connect(ctx); err != nil {
		return err
	}
	defer adapter.Close()
	fmt.Fprintln(out, "Connected to Discord")

	if err := registerCommands(ctx, adapter); err != nil {
		return err
	}
	fmt.Fprintln(out, "Slash commands registered")

	if err := adapter.Listen(ctx, dispatcher.Dispatch); err != nil {
		return err
	}

	go limiter.Run(ctx)
	go correlator.Run(ctx)

	if !noDashboard && cfg.Dashboard.Port > 0 {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:   gormDB,
				Port: cfg.Dashboard.Port,
				Out:  out,
			})
			if err != nil {
				log.Printf("quaydesk: dashboard: %v", err)
			}
		}()
	}

	fmt.Fprintln(out, "QuayDesk is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)

	cancel()
	dispatcher.Drain()
	return nil
}

// registerCommands retries registration until the Ready payload has
// delivered the application ID.
func registerCommands(ctx context.Context, adapter *discord.Adapter) error {
	var err error
	for i := 0; i < registerRetries; i++ {
		err = adapter.RegisterCommands(ctx, bot.Commands())
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "not yet known") {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(registerInterval):
		}
	}
	return err
}
