// Package connector holds the demo front-end handlers served by pomelod.
package connector

import "github.com/danmuck/pomelogate/internal/route"

const RouteHello = "connector.entryHandler.hello"

// Register installs the connector handlers on r.
func Register(r *route.Registry) error {
	return r.Register(RouteHello, Hello)
}

// Hello echoes the request body tagged with the session's request counter.
func Hello(s route.Session, body map[string]any) (map[string]any, error) {
	if body == nil {
		body = make(map[string]any)
	}
	body["serverReqId"] = s.NextReqID()
	return map[string]any{
		"code": 0,
		"msg":  body,
	}, nil
}
