package reactions

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/neurobot/internal/database/types"
	"github.com/robalyx/neurobot/internal/setup/config"
)

// ErrEmptyPattern is returned for a rule without a pattern.
var ErrEmptyPattern = errors.New("empty pattern")

const emptyToken = "$$empty$$"

var escapePattern = regexp.MustCompile(`\\u([0-9a-fA-F]{4})|\\U([0-9a-fA-F]{8})`)

// CompilePattern compiles a stored rule pattern into a case-insensitive regexp.
// $$unicode$$XXXX and $$UNICODE$$XXXXXXXX spell code points, and $$empty$$
// matches every emoji.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	if pattern == emptyToken {
		pattern = ""
	}

	expr := strings.NewReplacer(`$$unicode$$`, `\u`, `$$UNICODE$$`, `\U`).Replace(pattern)
	expr = escapePattern.ReplaceAllStringFunc(expr, func(m string) string {
		return `\x{` + m[2:] + `}`
	})

	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// rule is a ban rule with its compiled pattern.
type rule struct {
	ban *types.ReactionBan
	re  *regexp.Regexp
}

// applies reports whether the rule covers channelID under scope.
func (r rule) applies(scope string, channelID snowflake.ID) bool {
	if scope == config.ScopeAllow {
		return len(r.ban.Channels) == 0 || config.HasID(r.ban.Channels, channelID)
	}
	return !config.HasID(r.ban.IgnoredChannels, channelID)
}

// banCache holds the compiled enabled and disabled rules of each guild.
// It is only ever replaced wholesale from storage.
type banCache struct {
	mu     sync.RWMutex
	guilds map[snowflake.ID][]rule
}

func newBanCache() *banCache {
	return &banCache{guilds: make(map[snowflake.ID][]rule)}
}

// store replaces a guild's rules, returning the patterns that failed to compile.
func (c *banCache) store(guildID snowflake.ID, bans []*types.ReactionBan) map[string]error {
	rules := make([]rule, 0, len(bans))
	invalid := make(map[string]error)

	for _, ban := range bans {
		re, err := CompilePattern(ban.Pattern)
		if err != nil {
			invalid[ban.Pattern] = err
			continue
		}
		rules = append(rules, rule{ban: ban, re: re})
	}

	c.mu.Lock()
	c.guilds[guildID] = rules
	c.mu.Unlock()

	return invalid
}

// bans returns the cached rules of a guild in storage order.
func (c *banCache) bans(guildID snowflake.ID) []*types.ReactionBan {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*types.ReactionBan, 0, len(c.guilds[guildID]))
	for _, r := range c.guilds[guildID] {
		out = append(out, r.ban)
	}
	return out
}

// match returns the first enabled rule matching key in channelID.
func (c *banCache) match(guildID, channelID snowflake.ID, scope, key string) (*types.ReactionBan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.guilds[guildID] {
		if r.ban.Enabled && r.applies(scope, channelID) && r.re.MatchString(key) {
			return r.ban, true
		}
	}
	return nil, false
}

// group is a notification group with its compiled pattern.
type group struct {
	config.NotificationGroup
	re *regexp.Regexp
}
