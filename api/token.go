package api

import (
	"strings"

	"github.com/abdolence/slack-morphism-go/ratelimit"
)

// TokenType is derived from the token prefix.
type TokenType string

const (
	TokenTypeBot     TokenType = "bot"
	TokenTypeUser    TokenType = "user"
	TokenTypeApp     TokenType = "app"
	TokenTypeUnknown TokenType = "unknown"
)

// Token is an API credential plus the team it belongs to. TeamID selects the
// per-team rate limit buckets; leave it empty for app-level tokens.
type Token struct {
	Value  string
	TeamID ratelimit.TeamID
	Scope  string
}

// NewToken wraps a raw token value.
func NewToken(value string) Token {
	return Token{Value: value}
}

// WithTeamID returns a copy of t bound to teamID.
func (t Token) WithTeamID(teamID ratelimit.TeamID) Token {
	t.TeamID = teamID
	return t
}

// Type returns the token kind from its prefix.
func (t Token) Type() TokenType {
	switch {
	case strings.HasPrefix(t.Value, "xoxb-"):
		return TokenTypeBot
	case strings.HasPrefix(t.Value, "xoxp-"):
		return TokenTypeUser
	case strings.HasPrefix(t.Value, "xapp-"):
		return TokenTypeApp
	default:
		return TokenTypeUnknown
	}
}

// String redacts the secret part of the token.
func (t Token) String() string {
	if i := strings.IndexByte(t.Value, '-'); i > 0 {
		return t.Value[:i+1] + "****"
	}
	if t.Value == "" {
		return ""
	}
	return "****"
}
