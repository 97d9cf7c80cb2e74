package protocol

// HelloMsg opens a connection. ActorID resumes an existing actor; when empty
// the server issues a fresh one in the WELCOME.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActorName       string `json:"actor_name"`
	ActorID         string `json:"actor_id,omitempty"`
}

type TrackInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	MaxLevel    int    `json:"max_level"`
}

type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ActorID         string      `json:"actor_id"`
	Tracks          []TrackInfo `json:"tracks"`
}

// EventMsg is one world action. Column counts additional identical subjects
// stacked above the triggering one (sugar-cane style harvests). Grown reports
// that the host observed the subject fully mature.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Kind            string `json:"kind"`
	Subject         string `json:"subject"`
	Tool            string `json:"tool,omitempty"`
	World           string `json:"world"`
	Pos             [3]int `json:"pos"`
	Column          int    `json:"column,omitempty"`
	Grown           bool   `json:"grown,omitempty"`
}

type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Op              string `json:"op"`
	Track           string `json:"track,omitempty"`
}

type ResultMsg struct {
	Type   string `json:"type"`
	Op     string `json:"op"`
	Ok     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type NotifyMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
