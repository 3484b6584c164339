package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Reaction is one entry of the append-only reaction log.
// Entries are never updated or deleted; presence is derived by replaying them.
type Reaction struct {
	bun.BaseModel `bun:"table:reactions,alias:r"`

	ID        int64  `bun:",pk,autoincrement"`
	GuildID   uint64 `bun:",notnull"`
	ChannelID uint64 `bun:",notnull"`
	MessageID uint64 `bun:",notnull"`
	ReactorID uint64 `bun:",notnull"`
	Emoji     string `bun:",notnull"`
	Timestamp int64  `bun:",notnull"`           // unix milliseconds
	Sequence  uint64 `bun:",notnull,default:0"` // delivery order within a process run
	Added     bool   `bun:",notnull"`
}

// Time returns the entry timestamp.
func (r *Reaction) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// ReactionBan is a regex rule whose matching reactions are removed on add.
type ReactionBan struct {
	bun.BaseModel `bun:"table:reaction_bans,alias:rb"`

	ID              int64     `bun:",pk,autoincrement"`
	GuildID         uint64    `bun:",notnull,unique:reaction_bans_guild_pattern"`
	Pattern         string    `bun:",notnull,unique:reaction_bans_guild_pattern"`
	Name            string    `bun:",notnull"`
	Enabled         bool      `bun:",notnull"`
	Channels        []uint64  `bun:"channels"`
	IgnoredChannels []uint64  `bun:"ignored_channels"`
	CreatedAt       time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// ReactionNotification maps a notified message to the notification posted for it.
type ReactionNotification struct {
	bun.BaseModel `bun:"table:reaction_notifications,alias:rn"`

	GuildID        uint64    `bun:",pk"`
	Pattern        string    `bun:",pk"`
	MessageID      uint64    `bun:",pk"`
	ChannelID      uint64    `bun:",notnull"`
	NotificationID uint64    `bun:",notnull"`
	Count          int       `bun:",notnull"`
	UpdatedAt      time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
