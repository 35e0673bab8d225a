package sddp

import "encoding/json"

// Provider control messages.
const (
	msgAuthorised    = "is_authorised"
	msgNotAuthorised = "not_authorised"
)

// authFrame is the outlet-credential handshake sent right after connecting.
type authFrame struct {
	Outlet outletKey `json:"outlet"`
}

type outletKey struct {
	OutletKey string `json:"outletKey"`
}

// subscribeFrame names the fixture and requested feed set.
type subscribeFrame struct {
	Content subscribeBody `json:"content"`
}

type subscribeBody struct {
	Name        string   `json:"name"`
	Feed        []string `json:"feed"`
	FixtureUUID string   `json:"fixtureUuid"`
	OptaID      bool     `json:"optaId"`
}

// inboundFrame covers every frame shape the provider sends. Control frames
// carry an outlet message; content frames carry live data with embedded
// match details.
type inboundFrame struct {
	Outlet  *outletMsg      `json:"outlet"`
	Content json.RawMessage `json:"content"`
}

type outletMsg struct {
	Msg string `json:"msg"`
}

type contentBody struct {
	LiveData *liveData `json:"liveData"`
}

type liveData struct {
	MatchDetails json.RawMessage `json:"matchDetails"`
}
