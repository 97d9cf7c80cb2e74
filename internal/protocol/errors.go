package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownTrack  = "E_UNKNOWN_TRACK"
	ErrNotJoined     = "E_NOT_JOINED"
	ErrAlreadyJoined = "E_ALREADY_JOINED"
	ErrTrackLimit    = "E_TRACK_LIMIT"
	ErrNotLoaded     = "E_NOT_LOADED"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownTrack:    {},
	ErrNotJoined:       {},
	ErrAlreadyJoined:   {},
	ErrTrackLimit:      {},
	ErrNotLoaded:       {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
