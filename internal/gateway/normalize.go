package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/scheduler"
)

// dedupWindow is how long a delivered packet is remembered. The structured
// and raw forms of one packet arrive back to back, so this only needs to
// cover scheduling jitter.
const dedupWindow = time.Minute

// Normalizer deduplicates the structured and raw forms of a gateway packet so
// each packet reaches features once. Packets are identified by their sequence
// number plus the entity they describe, which keeps a reconnect that restarts
// sequence numbers from colliding with unrelated events.
type Normalizer struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	order     uint64
	scheduler *scheduler.Scheduler
}

// NewNormalizer creates a Normalizer that prunes remembered packets through s.
func NewNormalizer(s *scheduler.Scheduler) *Normalizer {
	return &Normalizer{
		seen:      make(map[string]struct{}),
		scheduler: s,
	}
}

// Accept reports whether the packet is seen for the first time.
func (n *Normalizer) Accept(seq int, kind string, ids ...snowflake.ID) bool {
	key := fmt.Sprintf("dedup:%d:%s:%v", seq, kind, ids)

	n.mu.Lock()
	if _, ok := n.seen[key]; ok {
		n.mu.Unlock()
		return false
	}
	n.seen[key] = struct{}{}
	n.mu.Unlock()

	n.scheduler.After(key, dedupWindow, func() {
		n.mu.Lock()
		delete(n.seen, key)
		n.mu.Unlock()
	})
	return true
}

// AcceptReaction reports whether a reaction packet is new. Accepted
// reactions are stamped with the receive time and a delivery counter so the
// log keeps gateway order however their handlers are scheduled.
func (n *Normalizer) AcceptReaction(seq int, r *Reaction) bool {
	kind := "reaction_remove:" + r.Emoji.Key()
	if r.Added {
		kind = "reaction_add:" + r.Emoji.Key()
	}
	if !n.Accept(seq, kind, r.GuildID, r.MessageID, r.UserID) {
		return false
	}

	n.mu.Lock()
	n.order++
	r.Order = n.order
	n.mu.Unlock()
	r.Received = n.scheduler.Now()
	return true
}

// AcceptMessage reports whether a message create packet is new.
func (n *Normalizer) AcceptMessage(seq int, m Message) bool {
	return n.Accept(seq, "message_create", m.GuildID, m.ID)
}

// AcceptMessageUpdate reports whether a message update packet is new.
func (n *Normalizer) AcceptMessageUpdate(seq int, m MessageUpdate) bool {
	return n.Accept(seq, "message_update", m.GuildID, m.ID)
}

// Pending returns how many packets are currently remembered.
func (n *Normalizer) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}
