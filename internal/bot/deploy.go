package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// CommandSetter bulk-replaces a guild's application commands. disgo's
// rest.Rest satisfies it.
type CommandSetter interface {
	SetGuildCommands(
		applicationID, guildID snowflake.ID,
		commandCreates []discord.ApplicationCommandCreate,
		opts ...rest.RequestOpt,
	) ([]discord.ApplicationCommand, error)
}

// DeployOptions controls a command deployment.
type DeployOptions struct {
	ApplicationID snowflake.ID
	Guilds        []snowflake.ID
	// Clear sets an empty command set before deploying.
	Clear bool
}

// Deploy replaces the command set of every guild with commands. Failures are
// logged per guild and joined into the returned error.
func Deploy(
	ctx context.Context, setter CommandSetter, commands []discord.ApplicationCommandCreate,
	opts DeployOptions, logger *zap.Logger,
) error {
	logger = logger.Named("deploy")

	var errs []error
	for _, guildID := range opts.Guilds {
		guildLogger := logger.With(zap.Uint64("guildID", uint64(guildID)))

		if opts.Clear {
			_, err := setter.SetGuildCommands(
				opts.ApplicationID, guildID, []discord.ApplicationCommandCreate{}, rest.WithCtx(ctx),
			)
			if err != nil {
				guildLogger.Error("Failed to clear commands", zap.Error(err))
				errs = append(errs, fmt.Errorf("failed to clear commands in %s: %w", guildID, err))
				continue
			}
			guildLogger.Info("Cleared commands")
		}

		deployed, err := setter.SetGuildCommands(opts.ApplicationID, guildID, commands, rest.WithCtx(ctx))
		if err != nil {
			guildLogger.Error("Failed to deploy commands", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to deploy commands in %s: %w", guildID, err))
			continue
		}

		guildLogger.Info("Deployed commands", zap.Int("count", len(deployed)))
	}

	return errors.Join(errs...)
}
