// Package features enumerates every feature the bot runs.
package features

import (
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/features/embedban"
	"github.com/robalyx/neurobot/internal/features/fun"
	"github.com/robalyx/neurobot/internal/features/info"
	"github.com/robalyx/neurobot/internal/features/pendingrole"
	"github.com/robalyx/neurobot/internal/features/ping"
	"github.com/robalyx/neurobot/internal/features/polls"
	"github.com/robalyx/neurobot/internal/features/qol"
	"github.com/robalyx/neurobot/internal/features/reactions"
	"github.com/robalyx/neurobot/internal/features/reassignrole"
	"github.com/robalyx/neurobot/internal/features/relay"
	"github.com/robalyx/neurobot/internal/features/swarm"
	"github.com/robalyx/neurobot/internal/features/tldr"
	"github.com/robalyx/neurobot/internal/features/twitch"
)

// All constructs every feature in registration order.
func All(deps feature.Deps) []feature.Feature {
	return []feature.Feature{
		reactions.New(deps),
		polls.New(deps),
		pendingrole.New(deps),
		embedban.New(deps),
		reassignrole.New(deps),
		relay.New(deps),
		swarm.New(deps),
		qol.New(deps),
		tldr.New(deps),
		info.New(deps),
		ping.New(deps),
		twitch.New(deps),
		fun.New(deps),
	}
}
