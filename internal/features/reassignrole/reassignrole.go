// Package reassignrole removes and re-adds roles on every member holding
// them, which refreshes linked-role integrations.
package reassignrole

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/gateway/rate"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// GracePeriod is how long operators have to abort after confirming roles.
	GracePeriod = 30 * time.Second

	reason = "[interaction/reassignrole] Reassigning roles"
)

// Option configures the feature.
type Option func(*Feature)

// WithGracePeriod replaces the wait before processing starts.
func WithGracePeriod(d time.Duration) Option {
	return func(f *Feature) { f.grace = d }
}

// WithLimiter replaces the pacing between members.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(f *Feature) { f.limiter = limiter }
}

// Feature implements /reassignrole.
type Feature struct {
	gateway gateway.Gateway
	grace   time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates the reassign role feature.
func New(deps feature.Deps, opts ...Option) *Feature {
	f := &Feature{
		gateway: deps.Gateway,
		grace:   GracePeriod,
		limiter: rate.New(250*time.Millisecond, 2, 100*time.Millisecond),
		logger:  deps.Logger.Named("reassignrole"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feature) Name() string { return "reassignrole" }

func (f *Feature) Commands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:                     "reassignrole",
			Description:              "Reassigns the given role IDs to all members with the role IDs.",
			DefaultMemberPermissions: feature.Permissions(discord.PermissionManageRoles),
			Contexts:                 feature.GuildOnly,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "ids",
					Description: "The role IDs to reassign, separated by commas",
					Required:    true,
				},
			},
		},
	}
}

// parseIDs splits a comma separated list of role IDs.
func parseIDs(input string) ([]snowflake.ID, bool) {
	var ids []snowflake.ID
	for part := range strings.SplitSeq(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := snowflake.Parse(part)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, len(ids) > 0
}

// fetchRoles resolves every role concurrently. Missing roles are reported
// as absent.
func (f *Feature) fetchRoles(ctx context.Context, guildID snowflake.ID, ids []snowflake.ID) ([]discord.Role, bool, error) {
	roles := make([]discord.Role, len(ids))
	found := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for idx, id := range ids {
		g.Go(func() error {
			role, err := f.gateway.FetchRole(gctx, guildID, id)
			if err != nil {
				return err
			}
			roles[idx], found[idx] = role.Get()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, fmt.Errorf("failed to fetch roles: %w", err)
	}

	for _, ok := range found {
		if !ok {
			return nil, false, nil
		}
	}
	return roles, true, nil
}

func (f *Feature) HandleCommand(ctx context.Context, i gateway.Interaction) error {
	guildID := i.GuildID()
	input, _ := i.String("ids")

	ids, ok := parseIDs(input)
	if !ok {
		return i.Reply(ctx, gateway.Content("One or more roles do not exist."))
	}

	roles, ok, err := f.fetchRoles(ctx, guildID, ids)
	if err != nil {
		return err
	}
	if !ok {
		return i.Reply(ctx, gateway.Content("One or more roles do not exist."))
	}

	members, err := f.gateway.FetchMembers(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to fetch members: %w", err)
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	if err := i.Reply(ctx, gateway.Content(fmt.Sprintf(
		"Selected roles:\n- `%s`\n\nIf these aren't correct, you have %d seconds to kill the bot.",
		strings.Join(names, "`\n- `"), int(f.grace.Seconds()),
	))); err != nil {
		return err
	}

	timer := time.NewTimer(f.grace)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	if err := i.Followup(ctx, gateway.Content(fmt.Sprintf("Processing %d member(s)...", len(members)))); err != nil {
		return err
	}

	reassigned := 0
	for _, member := range members {
		var held []snowflake.ID
		for _, id := range ids {
			if gateway.HasRole(member, id) {
				held = append(held, id)
			}
		}
		if len(held) == 0 {
			continue
		}

		if err := f.limiter.WaitForNextSlot(ctx); err != nil {
			return err
		}
		if err := f.reassign(ctx, guildID, member.User.ID, held); err != nil {
			f.logger.Warn("Failed to reassign roles",
				zap.Uint64("userID", uint64(member.User.ID)),
				zap.Error(err))
			continue
		}
		reassigned++
	}

	f.logger.Info("Reassigned roles",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Int("members", reassigned))

	return i.Followup(ctx, gateway.Content(fmt.Sprintf("Reassigned roles to %d member(s).", reassigned)))
}

func (f *Feature) reassign(ctx context.Context, guildID, userID snowflake.ID, roles []snowflake.ID) error {
	for _, roleID := range roles {
		if err := f.gateway.RemoveRole(ctx, guildID, userID, roleID, reason); err != nil {
			return err
		}
	}
	for _, roleID := range roles {
		if err := f.gateway.AddRole(ctx, guildID, userID, roleID, reason); err != nil {
			return err
		}
	}
	return nil
}
