package types

import (
	"time"

	"github.com/uptrace/bun"
)

// SwarmStreak is the sticker streak of a guild.
type SwarmStreak struct {
	bun.BaseModel `bun:"table:swarm_streaks,alias:ss"`

	GuildID     uint64    `bun:",pk"`
	Count       int       `bun:",notnull"`
	StickerID   uint64    `bun:",notnull"`
	StickerName string    `bun:",notnull"`
	UpdatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
