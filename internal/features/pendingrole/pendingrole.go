// Package pendingrole grants the verified role to members once they interact
// with the server.
package pendingrole

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/gateway/rate"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	// ProgressInterval is how often a running sweep reports progress.
	ProgressInterval = 15 * time.Second

	sourceMessage = "message"
	sourceMember  = "member update"
	sourceVoice   = "voice"
	sourceSweep   = "add-missing"
)

// Option configures the feature.
type Option func(*Feature)

// WithLimiter replaces the pacing of bulk sweeps.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(f *Feature) { f.limiter = limiter }
}

// WithProgressInterval replaces how often sweeps report progress.
func WithProgressInterval(interval time.Duration) Option {
	return func(f *Feature) { f.progressInterval = interval }
}

// Feature assigns the pending role.
type Feature struct {
	config           *config.Config
	gateway          gateway.Gateway
	limiter          *rate.Limiter
	progressInterval time.Duration
	logger           *zap.Logger

	mu    sync.RWMutex
	roles map[snowflake.ID]snowflake.ID
}

// New creates the pending role feature.
func New(deps feature.Deps, opts ...Option) *Feature {
	f := &Feature{
		config:           deps.Config,
		gateway:          deps.Gateway,
		limiter:          rate.New(200*time.Millisecond, 5, 100*time.Millisecond),
		progressInterval: ProgressInterval,
		logger:           deps.Logger.Named("pendingrole"),
		roles:            make(map[snowflake.ID]snowflake.ID),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feature) Name() string { return "pendingrole" }

// Init resolves each guild's configured role. Guilds whose role cannot be
// found are left out.
func (f *Feature) Init(ctx context.Context) error {
	for _, server := range f.config.Servers {
		if server.PendingRole.Role == 0 {
			continue
		}
		guildID := snowflake.ID(server.GuildID)
		roleID := snowflake.ID(server.PendingRole.Role)

		role, err := f.gateway.FetchRole(ctx, guildID, roleID)
		if err != nil || role.IsAbsent() {
			f.logger.Error("Pending role does not exist, disabling for guild",
				zap.Uint64("guildID", uint64(guildID)),
				zap.Uint64("roleID", uint64(roleID)),
				zap.Error(err))
			continue
		}

		f.mu.Lock()
		f.roles[guildID] = roleID
		f.mu.Unlock()
	}
	return nil
}

func (f *Feature) role(guildID snowflake.ID) (snowflake.ID, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	roleID, ok := f.roles[guildID]
	return roleID, ok
}

// grant adds the role unless the member already has it.
func (f *Feature) grant(ctx context.Context, guildID, userID snowflake.ID, roles []snowflake.ID, source string) error {
	roleID, ok := f.role(guildID)
	if !ok {
		return nil
	}
	for _, id := range roles {
		if id == roleID {
			return nil
		}
	}

	reason := fmt.Sprintf("[interaction/%s] User no longer pending rule verification", source)
	if err := f.gateway.AddRole(ctx, guildID, userID, roleID, reason); err != nil {
		f.logger.Warn("Failed to add pending role",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Uint64("userID", uint64(userID)),
			zap.String("source", source),
			zap.Error(err))
		return nil
	}
	return nil
}

func (f *Feature) OnMessageCreate(ctx context.Context, msg gateway.Message) error {
	if msg.Author.Bot {
		return nil
	}
	return f.grant(ctx, msg.GuildID, msg.Author.ID, msg.MemberRoles, sourceMessage)
}

func (f *Feature) OnMemberUpdate(ctx context.Context, update gateway.MemberUpdate) error {
	if update.Member.User.Bot {
		return nil
	}
	return f.grant(ctx, update.GuildID, update.Member.User.ID, update.Member.RoleIDs, sourceMember)
}

func (f *Feature) OnVoiceStateUpdate(ctx context.Context, update gateway.VoiceStateUpdate) error {
	if update.Member.User.ID == 0 || update.Member.User.Bot {
		return nil
	}
	return f.grant(ctx, update.GuildID, update.UserID, update.Member.RoleIDs, sourceVoice)
}

// Commands returns the /pendingrole definition.
func (f *Feature) Commands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:                     "pendingrole",
			Description:              "Manage the pending role",
			DefaultMemberPermissions: feature.Permissions(discord.PermissionManageRoles),
			Contexts:                 feature.GuildOnly,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionSubCommand{
					Name:        "add-missing",
					Description: "Adds the pending role to every member missing it",
				},
			},
		},
	}
}

// sweepCounts tracks a running sweep.
type sweepCounts struct {
	processed atomic.Int64
	added     atomic.Int64
	failed    atomic.Int64
	total     int
}

func (c *sweepCounts) progress() string {
	return fmt.Sprintf("Adding pending role... %d/%d processed (%d added, %d failed)",
		c.processed.Load(), c.total, c.added.Load(), c.failed.Load())
}

func (c *sweepCounts) summary() string {
	return fmt.Sprintf("Finished adding pending role: %d added, %d failed, %d total members.",
		c.added.Load(), c.failed.Load(), c.total)
}

// HandleCommand runs the add-missing sweep.
func (f *Feature) HandleCommand(ctx context.Context, i gateway.Interaction) error {
	guildID := i.GuildID()
	roleID, ok := f.role(guildID)
	if !ok {
		return i.Reply(ctx, gateway.Ephemeral("The pending role is not configured for this server."))
	}

	if err := i.Defer(ctx, false); err != nil {
		return err
	}

	members, err := f.gateway.FetchMembers(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to fetch members: %w", err)
	}

	counts := &sweepCounts{total: len(members)}
	logger := f.logger.With(zap.Uint64("guildID", uint64(guildID)), zap.Int("total", counts.total))
	logger.Info("Starting pending role sweep")

	tickerCtx, stopTicker := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() {
		f.reportProgress(tickerCtx, i, counts, logger)
	})

	reason := fmt.Sprintf("[interaction/%s] User no longer pending rule verification", sourceSweep)
	for _, member := range members {
		if ctx.Err() != nil {
			break
		}
		counts.processed.Add(1)

		if member.User.Bot || gateway.HasRole(member, roleID) {
			continue
		}

		if err := f.limiter.WaitForNextSlot(ctx); err != nil {
			break
		}

		if err := f.gateway.AddRole(ctx, guildID, member.User.ID, roleID, reason); err != nil {
			counts.failed.Add(1)
			logger.Warn("Failed to add pending role", zap.Uint64("userID", uint64(member.User.ID)), zap.Error(err))
			continue
		}
		counts.added.Add(1)
	}

	stopTicker()
	wg.Wait()

	logger.Info("Finished pending role sweep",
		zap.Int64("added", counts.added.Load()),
		zap.Int64("failed", counts.failed.Load()))

	summary := counts.summary()
	return i.EditReply(context.WithoutCancel(ctx), discord.MessageUpdate{Content: &summary})
}

// reportProgress edits the reply on every tick. A failed edit stops the
// reports but not the sweep.
func (f *Feature) reportProgress(ctx context.Context, i gateway.Interaction, counts *sweepCounts, logger *zap.Logger) {
	ticker := time.NewTicker(f.progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			progress := counts.progress()
			if err := i.EditReply(ctx, discord.MessageUpdate{Content: &progress}); err != nil {
				logger.Warn("Failed to report sweep progress, stopping reports", zap.Error(err))
				return
			}
		}
	}
}
