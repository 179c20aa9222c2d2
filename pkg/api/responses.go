package api

import "github.com/sessionrelay/tailwatch/pkg/destination"

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// sessionDestination is the wire shape of one attached destination within
// a sessionInfo response.
type sessionDestination struct {
	Type    string `json:"type"`
	ChatID  string `json:"chat_id,omitempty"`
	Channel string `json:"channel,omitempty"`
}

type sessionInfo struct {
	SessionID    string               `json:"session_id"`
	Path         string               `json:"path"`
	Destinations []sessionDestination `json:"destinations"`
}

func toSessionDestination(t destination.Target) sessionDestination {
	switch t.Kind {
	case destination.KindTelegram:
		return sessionDestination{Type: "telegram", ChatID: t.ChatID}
	case destination.KindSlack:
		return sessionDestination{Type: "slack", Channel: t.Channel}
	default:
		return sessionDestination{Type: string(t.Kind)}
	}
}
