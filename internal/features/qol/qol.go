// Package qol holds small quality of life behaviors: reacting to long
// messages, keeping the minecraft role for subscribers, and surfacing flagged
// attachments on auto-moderation alerts.
package qol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

const (
	minecraftReason = "[qol] User does not have subscriber role"

	// maxAttachmentSize is the largest file a bot may upload without boosts.
	maxAttachmentSize = 10 << 20
)

// Option configures the feature.
type Option func(*Feature)

// WithHTTPClient replaces the client that downloads flagged attachments.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Feature) { f.http = client }
}

type minecraftRoles struct {
	sub       snowflake.ID
	minecraft snowflake.ID
}

// Feature implements the quality of life behaviors.
type Feature struct {
	config  *config.Config
	gateway gateway.Gateway
	http    *http.Client
	logger  *zap.Logger

	mu        sync.RWMutex
	minecraft map[snowflake.ID]minecraftRoles
}

// New creates the qol feature.
func New(deps feature.Deps, opts ...Option) *Feature {
	f := &Feature{
		config:    deps.Config,
		gateway:   deps.Gateway,
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    deps.Logger.Named("qol"),
		minecraft: make(map[snowflake.ID]minecraftRoles),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feature) Name() string { return "qol" }

// Init enables the minecraft fix for guilds where both roles exist.
func (f *Feature) Init(ctx context.Context) error {
	for _, server := range f.config.Servers {
		fix := server.QOL.MinecraftFix
		if fix.SubRole == 0 || fix.MinecraftRole == 0 {
			continue
		}

		guildID := snowflake.ID(server.GuildID)
		roles := minecraftRoles{sub: snowflake.ID(fix.SubRole), minecraft: snowflake.ID(fix.MinecraftRole)}
		if !f.roleExists(ctx, guildID, roles.sub) || !f.roleExists(ctx, guildID, roles.minecraft) {
			f.logger.Warn("Minecraft fix roles missing, disabling for guild", zap.Uint64("guildID", uint64(guildID)))
			continue
		}

		f.mu.Lock()
		f.minecraft[guildID] = roles
		f.mu.Unlock()
	}
	return nil
}

func (f *Feature) roleExists(ctx context.Context, guildID, roleID snowflake.ID) bool {
	role, err := f.gateway.FetchRole(ctx, guildID, roleID)
	return err == nil && role.IsPresent()
}

// OnMessageCreate reacts to long messages.
func (f *Feature) OnMessageCreate(ctx context.Context, msg gateway.Message) error {
	if msg.Author.Bot {
		return nil
	}
	server, ok := f.config.Server(msg.GuildID).Get()
	if !ok {
		return nil
	}

	essaying := server.QOL.Essaying
	if essaying.Emote == "" || essaying.Threshold <= 0 {
		return nil
	}
	if config.HasID(essaying.IgnoredChannels, msg.ChannelID) {
		return nil
	}
	if utf8.RuneCountInString(msg.Content) < essaying.Threshold {
		return nil
	}

	if err := f.gateway.AddReaction(ctx, msg.ChannelID, msg.ID, gateway.ReactionAPIString(essaying.Emote)); err != nil {
		return fmt.Errorf("failed to react to essay: %w", err)
	}
	return nil
}

// OnMemberUpdate removes the minecraft role from members without the
// subscriber role.
func (f *Feature) OnMemberUpdate(ctx context.Context, update gateway.MemberUpdate) error {
	f.mu.RLock()
	roles, ok := f.minecraft[update.GuildID]
	f.mu.RUnlock()
	if !ok {
		return nil
	}

	member := update.Member
	if !gateway.HasRole(member, roles.minecraft) || gateway.HasRole(member, roles.sub) {
		return nil
	}

	if err := f.gateway.RemoveRole(ctx, update.GuildID, member.User.ID, roles.minecraft, minecraftReason); err != nil {
		return fmt.Errorf("failed to remove minecraft role: %w", err)
	}

	f.logger.Info("Removed minecraft role from non-subscriber",
		zap.Uint64("guildID", uint64(update.GuildID)),
		zap.Uint64("userID", uint64(member.User.ID)))
	return nil
}

// OnAutoModAction replies to an alert message with the attachments of the
// flagged message, which the alert itself does not show. Attachments that
// cannot be downloaded are linked instead.
func (f *Feature) OnAutoModAction(ctx context.Context, action gateway.AutoModAction) error {
	if action.ActionType != discord.AutoModerationActionTypeSendAlertMessage {
		return nil
	}
	server, ok := f.config.Server(action.GuildID).Get()
	if !ok || !server.QOL.AutoMod.SendFlagAttachments {
		return nil
	}
	if action.ChannelID == 0 || action.MessageID == 0 || action.AlertMessageID == 0 || action.AlertChannelID == 0 {
		return nil
	}

	flagged, err := f.gateway.FetchMessage(ctx, action.ChannelID, action.MessageID)
	if err != nil {
		return fmt.Errorf("failed to fetch flagged message: %w", err)
	}
	message, ok := flagged.Get()
	if !ok || len(message.Attachments) == 0 {
		return nil
	}

	// The CDN links die with the flagged message, so the files are uploaded again.
	var (
		files  []*discord.File
		failed []string
	)
	for _, attachment := range message.Attachments {
		data, err := f.download(ctx, attachment.URL)
		if err != nil {
			f.logger.Warn("Failed to download flagged attachment",
				zap.Uint64("messageID", uint64(action.MessageID)),
				zap.String("url", attachment.URL),
				zap.Error(err))
			failed = append(failed, attachment.URL)
			continue
		}
		var description string
		if attachment.Description != nil {
			description = *attachment.Description
		}
		files = append(files, discord.NewFile(attachment.Filename, description, bytes.NewReader(data)))
	}

	alertID := action.AlertMessageID
	alertChannel := action.AlertChannelID
	if _, err := f.gateway.SendMessage(ctx, action.AlertChannelID, discord.MessageCreate{
		Content: strings.Join(failed, "\n"),
		Files:   files,
		MessageReference: &discord.MessageReference{
			MessageID: &alertID,
			ChannelID: &alertChannel,
		},
		AllowedMentions: &discord.AllowedMentions{},
	}); err != nil {
		return fmt.Errorf("failed to forward flagged attachments: %w", err)
	}
	return nil
}

// download fetches an attachment body, refusing files too large to upload.
func (f *Feature) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > maxAttachmentSize {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxAttachmentSize)
	}
	return data, nil
}
