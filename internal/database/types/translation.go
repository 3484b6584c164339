package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Translation links a source message to its relayed translation.
type Translation struct {
	bun.BaseModel `bun:"table:translations,alias:t"`

	MessageID           uint64    `bun:",pk"`
	GuildID             uint64    `bun:",notnull"`
	ChannelID           uint64    `bun:",notnull"`
	TranslatedChannelID uint64    `bun:",notnull"`
	TranslatedMessageID uint64    `bun:",notnull"`
	Edits               int       `bun:",notnull"`
	CreatedAt           time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
