// Package swarm tracks sticker streaks in a designated channel.
package swarm

import (
	"context"
	"fmt"
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/database"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

const (
	// AnnounceEvery is the streak length step that gets announced.
	AnnounceEvery = 5
	// BreakThreshold is the minimum streak whose break is announced.
	BreakThreshold = 5
)

// Feature counts consecutive identical stickers.
type Feature struct {
	config  *config.Config
	gateway gateway.Gateway
	db      database.Client
	logger  *zap.Logger

	mu      sync.Mutex
	streaks map[snowflake.ID]*types.SwarmStreak
}

// New creates the swarm feature.
func New(deps feature.Deps) *Feature {
	return &Feature{
		config:  deps.Config,
		gateway: deps.Gateway,
		db:      deps.DB,
		logger:  deps.Logger.Named("swarm"),
		streaks: make(map[snowflake.ID]*types.SwarmStreak),
	}
}

func (f *Feature) Name() string { return "swarm" }

func (f *Feature) Init(ctx context.Context) error {
	return f.db.Model().Swarm().CreateTable(ctx)
}

// streak returns the mirrored streak of a guild, loading it from storage on
// first access. Callers hold f.mu.
func (f *Feature) streak(ctx context.Context, guildID snowflake.ID) (*types.SwarmStreak, error) {
	if streak, ok := f.streaks[guildID]; ok {
		return streak, nil
	}

	stored, err := f.db.Model().Swarm().Get(ctx, uint64(guildID))
	if err != nil {
		return nil, err
	}
	streak := stored.OrElse(&types.SwarmStreak{GuildID: uint64(guildID)})
	f.streaks[guildID] = streak
	return streak, nil
}

// advance applies a sticker to the streak and returns the announcement, if any.
func advance(streak *types.SwarmStreak, sticker gateway.Sticker, author snowflake.ID) string {
	var announcement string

	switch {
	case streak.Count == 0:
		streak.Count = 1
	case streak.StickerID == uint64(sticker.ID):
		streak.Count++
		if streak.Count%AnnounceEvery == 0 {
			announcement = fmt.Sprintf("%s has a streak of %d!", sticker.Name, streak.Count)
		}
		return announcement
	default:
		if streak.Count >= BreakThreshold {
			announcement = fmt.Sprintf("%s broke %s streak of %d!",
				gateway.UserMention(author), streak.StickerName, streak.Count)
		}
		streak.Count = 1
	}

	streak.StickerID = uint64(sticker.ID)
	streak.StickerName = sticker.Name
	return announcement
}

func (f *Feature) OnMessageCreate(ctx context.Context, msg gateway.Message) error {
	if msg.Author.Bot || len(msg.Stickers) == 0 {
		return nil
	}
	server, ok := f.config.Server(msg.GuildID).Get()
	if !ok || server.Swarm.TargetChannel == 0 || snowflake.ID(server.Swarm.TargetChannel) != msg.ChannelID {
		return nil
	}

	f.mu.Lock()
	streak, err := f.streak(ctx, msg.GuildID)
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("failed to load swarm streak: %w", err)
	}

	announcement := advance(streak, msg.Stickers[0], msg.Author.ID)
	snapshot := *streak
	err = f.db.Model().Swarm().Upsert(ctx, &snapshot)
	f.mu.Unlock()

	if err != nil {
		f.logger.Error("Failed to persist swarm streak",
			zap.Uint64("guildID", uint64(msg.GuildID)),
			zap.Error(err))
	}

	if announcement == "" {
		return nil
	}

	if _, err := f.gateway.SendMessage(ctx, msg.ChannelID, discord.MessageCreate{
		Content:         announcement,
		AllowedMentions: &discord.AllowedMentions{},
	}); err != nil {
		return fmt.Errorf("failed to announce swarm streak: %w", err)
	}
	return nil
}
