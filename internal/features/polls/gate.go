package polls

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/setup/config"
)

// Verdict is the outcome of a poll check.
type Verdict int

const (
	// Accepted polls start new cooldown windows.
	Accepted Verdict = iota
	// Bypassed polls are allowed without touching cooldowns.
	Bypassed
	// Forbidden polls are deleted without touching cooldowns.
	Forbidden
	// UserCooldown polls are deleted while the author's window is active.
	UserCooldown
	// ChannelCooldown polls are deleted while the channel's window is active.
	ChannelCooldown
)

// Decision is a verdict with the end of the blocking window, if any.
type Decision struct {
	Verdict Verdict
	Until   time.Time
}

type windowKey struct {
	guild snowflake.ID
	id    snowflake.ID
}

func (k windowKey) String() string {
	return k.guild.String() + ":" + k.id.String()
}

// Gate tracks poll cooldown windows. Decisions depend only on the recorded
// window starts and the time passed in; Forget only frees memory.
type Gate struct {
	mu       sync.Mutex
	users    map[windowKey]time.Time
	channels map[windowKey]time.Time
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{
		users:    make(map[windowKey]time.Time),
		channels: make(map[windowKey]time.Time),
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// active returns when the window started at start ends, if it is still open.
func active(start time.Time, ok bool, window time.Duration, now time.Time) (time.Time, bool) {
	if !ok || window <= 0 {
		return time.Time{}, false
	}
	until := start.Add(window)
	return until, now.Before(until)
}

// Check decides what happens to a poll posted at now and records the new
// windows when it is accepted.
func (g *Gate) Check(settings *config.PollRestrictions, msg gateway.Message, now time.Time) Decision {
	if config.HasAnyID(settings.BypassRoles, msg.MemberRoles) || config.HasID(settings.BypassChannels, msg.ChannelID) {
		return Decision{Verdict: Bypassed}
	}

	if config.HasID(settings.DisallowedChannels, msg.ChannelID) {
		return Decision{Verdict: Forbidden}
	}
	if len(settings.AllowedRoles) > 0 && !config.HasAnyID(settings.AllowedRoles, msg.MemberRoles) {
		return Decision{Verdict: Forbidden}
	}

	user := windowKey{guild: msg.GuildID, id: msg.Author.ID}
	channel := windowKey{guild: msg.GuildID, id: msg.ChannelID}

	g.mu.Lock()
	defer g.mu.Unlock()

	start, ok := g.users[user]
	if until, blocked := active(start, ok, minutes(settings.MinutesPerUser), now); blocked {
		return Decision{Verdict: UserCooldown, Until: until}
	}

	start, ok = g.channels[channel]
	if until, blocked := active(start, ok, minutes(settings.MinutesPerChannel), now); blocked {
		return Decision{Verdict: ChannelCooldown, Until: until}
	}

	if settings.MinutesPerUser > 0 {
		g.users[user] = now
	}
	if settings.MinutesPerChannel > 0 {
		g.channels[channel] = now
	}
	return Decision{Verdict: Accepted}
}

// ForgetUser drops a user's window if it still started at start.
func (g *Gate) ForgetUser(guildID, userID snowflake.ID, start time.Time) {
	g.forget(g.users, windowKey{guild: guildID, id: userID}, start)
}

// ForgetChannel drops a channel's window if it still started at start.
func (g *Gate) ForgetChannel(guildID, channelID snowflake.ID, start time.Time) {
	g.forget(g.channels, windowKey{guild: guildID, id: channelID}, start)
}

func (g *Gate) forget(windows map[windowKey]time.Time, key windowKey, start time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if current, ok := windows[key]; ok && current.Equal(start) {
		delete(windows, key)
	}
}

// Len returns the number of tracked user and channel windows.
func (g *Gate) Len() (users, channels int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.users), len(g.channels)
}

func cleanupKey(kind string, guildID, id snowflake.ID) string {
	return "polls:" + kind + ":" + windowKey{guild: guildID, id: id}.String()
}
