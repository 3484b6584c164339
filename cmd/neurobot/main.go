package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/bot"
	"github.com/robalyx/neurobot/internal/bot/status"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/features"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/setup"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LogDir specifies where log files are stored.
const LogDir = "logs/bot_logs"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:   "neurobot",
		Usage:  "Community moderation bot",
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Connect to Discord and serve events",
				Action: runBot,
			},
			{
				Name:  "deploy",
				Usage: "Replace the application commands of configured guilds",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "clear",
						Usage: "Remove every command before deploying",
					},
					&cli.StringSliceFlag{
						Name:  "guild",
						Usage: "Only deploy to these guild IDs",
					},
				},
				Action: deployCommands,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

// initialize builds the application, the Discord client and the feature registry.
func initialize(ctx context.Context) (*setup.App, *bot.Bot, *bot.Registry, error) {
	app, err := setup.InitializeApp(ctx, LogDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize application: %w", err)
	}

	normalizer := gateway.NewNormalizer(app.Scheduler)
	discordBot, err := bot.New(ctx, app.Config.Discord.Token, normalizer, app.Logger)
	if err != nil {
		app.Cleanup(ctx)
		return nil, nil, nil, err
	}

	registry := bot.NewRegistry(app.Logger)
	err = registry.Register(features.All(feature.Deps{
		Config:     app.Config,
		Gateway:    discordBot.Gateway(),
		DB:         app.DB,
		Cache:      app.Cache,
		Translator: app.Translator,
		Summarizer: app.Summarizer,
		Scheduler:  app.Scheduler,
		Cron:       app.Cron,
		Logger:     app.Logger,
	})...)
	if err != nil {
		app.Cleanup(ctx)
		return nil, nil, nil, fmt.Errorf("failed to register features: %w", err)
	}

	return app, discordBot, registry, nil
}

func runBot(ctx context.Context, _ *cli.Command) error {
	app, discordBot, registry, err := initialize(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		discordBot.Close(cleanupCtx)
		app.Cleanup(cleanupCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Scheduler.Run(gctx)
		return nil
	})

	if addr := app.Config.Status.Addr; addr != "" {
		server := status.NewServer(addr, discordBot, app.Logger)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	app.Cron.Start()

	if err := discordBot.Start(registry); err != nil {
		return err
	}

	app.Logger.Info("Bot has been started, waiting for interrupt signal to shut down")

	return g.Wait()
}

func deployCommands(ctx context.Context, cmd *cli.Command) error {
	app, err := setup.InitializeApp(ctx, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	client, err := disgo.New(app.Config.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord client: %w", err)
	}
	defer client.Close(context.WithoutCancel(ctx))

	registry := bot.NewRegistry(app.Logger)
	err = registry.Register(features.All(feature.Deps{
		Config:     app.Config,
		Gateway:    gateway.NewClient(client, app.Logger),
		DB:         app.DB,
		Cache:      app.Cache,
		Translator: app.Translator,
		Summarizer: app.Summarizer,
		Scheduler:  app.Scheduler,
		Cron:       app.Cron,
		Logger:     app.Logger,
	})...)
	if err != nil {
		return fmt.Errorf("failed to register features: %w", err)
	}

	guilds, err := deployGuilds(app, cmd.StringSlice("guild"))
	if err != nil {
		return err
	}

	return bot.Deploy(ctx, client.Rest(), registry.Commands(), bot.DeployOptions{
		ApplicationID: client.ApplicationID(),
		Guilds:        guilds,
		Clear:         cmd.Bool("clear"),
	}, app.Logger)
}

// deployGuilds parses the requested guild IDs, defaulting to every configured server.
func deployGuilds(app *setup.App, requested []string) ([]snowflake.ID, error) {
	if len(requested) == 0 {
		guilds := make([]snowflake.ID, 0, len(app.Config.Servers))
		for _, server := range app.Config.Servers {
			guilds = append(guilds, snowflake.ID(server.GuildID))
		}
		return guilds, nil
	}

	guilds := make([]snowflake.ID, 0, len(requested))
	for _, raw := range requested {
		id, err := snowflake.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid guild ID %q: %w", raw, err)
		}
		if app.Config.Server(id).IsAbsent() {
			app.Logger.Warn("Deploying to a guild without configuration", zap.Uint64("guildID", uint64(id)))
		}
		guilds = append(guilds, id)
	}
	return guilds, nil
}
