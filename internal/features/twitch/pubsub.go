package twitch

import (
	"time"

	"github.com/bytedance/sonic"
)

const (
	frameListen    = "LISTEN"
	framePing      = "PING"
	frameMessage   = "MESSAGE"
	frameReconnect = "RECONNECT"
	frameResponse  = "RESPONSE"

	pollComplete = "POLL_COMPLETE"
)

type listenData struct {
	AuthToken string   `json:"auth_token"`
	Topics    []string `json:"topics"`
}

type outFrame struct {
	Type  string      `json:"type"`
	Nonce string      `json:"nonce,omitempty"`
	Data  *listenData `json:"data,omitempty"`
}

type inFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Data  struct {
		Topic   string `json:"topic"`
		Message string `json:"message"`
	} `json:"data"`
}

type votes struct {
	Total int `json:"total"`
}

// Choice is one option of a poll.
type Choice struct {
	Title       string `json:"title"`
	Votes       votes  `json:"votes"`
	TotalVoters int    `json:"total_voters"`
}

// Poll is a finished Twitch poll.
type Poll struct {
	Title           string    `json:"title"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Choices         []Choice  `json:"choices"`
	Votes           votes     `json:"votes"`
	TotalVoters     int       `json:"total_voters"`
}

type pollMessage struct {
	Type string `json:"type"`
	Data struct {
		Poll Poll `json:"poll"`
	} `json:"data"`
}

// decodePoll extracts a completed poll from a MESSAGE frame payload.
func decodePoll(message string) (Poll, bool, error) {
	var msg pollMessage
	if err := sonic.UnmarshalString(message, &msg); err != nil {
		return Poll{}, false, err
	}
	if msg.Type != pollComplete {
		return Poll{}, false, nil
	}
	return msg.Data.Poll, true, nil
}
