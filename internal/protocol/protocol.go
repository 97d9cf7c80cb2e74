package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeEvent   = "EVENT"
	TypeCmd     = "CMD"
	TypeResult  = "RESULT"
	TypeNotify  = "NOTIFY"
)

// Event kinds accepted inside EVENT messages.
const (
	EventPlace   = "PLACE"
	EventBreak   = "BREAK"
	EventHarvest = "HARVEST"
	EventFish    = "FISH"
)

// Command ops accepted inside CMD messages.
const (
	CmdJoin  = "JOIN"
	CmdLeave = "LEAVE"
	CmdStats = "STATS"
	CmdRank  = "RANK"
	CmdDebug = "DEBUG"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
