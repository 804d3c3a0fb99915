package session

import "encoding/json"

const (
	CodeOK       = 200
	CodeNotFound = 404
	CodeInternal = 500
)

// HandshakeRequest is the client's handshake body. Every field is optional.
type HandshakeRequest struct {
	Sys struct {
		Type    string `json:"type"`
		Version string `json:"version"`
	} `json:"sys"`
	User map[string]any `json:"user,omitempty"`
}

// HandshakeResponse is the body of the server's Handshake packet.
type HandshakeResponse struct {
	Code int            `json:"code"`
	Sys  HandshakeSys   `json:"sys"`
	User map[string]any `json:"user"`
}

type HandshakeSys struct {
	Heartbeat int             `json:"heartbeat"`
	Dict      map[string]any  `json:"dict"`
	Protos    HandshakeProtos `json:"protos"`
}

type HandshakeProtos struct {
	Client map[string]any `json:"client"`
	Server map[string]any `json:"server"`
}

// NewHandshakeResponse builds a 200 ack advertising heartbeatSeconds and
// empty route dictionaries.
func NewHandshakeResponse(heartbeatSeconds int) HandshakeResponse {
	return HandshakeResponse{
		Code: CodeOK,
		Sys: HandshakeSys{
			Heartbeat: heartbeatSeconds,
			Dict:      map[string]any{},
			Protos: HandshakeProtos{
				Client: map[string]any{},
				Server: map[string]any{},
			},
		},
		User: map[string]any{},
	}
}

// parseHandshake never fails; a malformed body yields an empty request.
func parseHandshake(body []byte) HandshakeRequest {
	var req HandshakeRequest
	if len(body) == 0 {
		return req
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return HandshakeRequest{}
	}
	return req
}

func errorBody(code int, msg string) map[string]any {
	return map[string]any{"code": code, "msg": msg}
}

// responseCode extracts a numeric "code" from a handler body for metrics.
func responseCode(body map[string]any) int {
	switch v := body["code"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return CodeOK
}
