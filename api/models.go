package api

import "encoding/json"

// ResponseMetadata carries pagination cursors and diagnostic messages.
type ResponseMetadata struct {
	NextCursor string   `json:"next_cursor,omitempty"`
	Messages   []string `json:"messages,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// APITestRequest asks api.test to echo its arguments, or to fail with Error.
type APITestRequest struct {
	Error string `json:"error,omitempty"`
	Foo   string `json:"foo,omitempty"`
}

type APITestResponse struct {
	Args map[string]string `json:"args,omitempty"`
}

type AuthTestResponse struct {
	URL                 string `json:"url"`
	Team                string `json:"team"`
	User                string `json:"user"`
	TeamID              string `json:"team_id"`
	UserID              string `json:"user_id"`
	BotID               string `json:"bot_id,omitempty"`
	EnterpriseID        string `json:"enterprise_id,omitempty"`
	IsEnterpriseInstall bool   `json:"is_enterprise_install,omitempty"`
}

// AppsConnectionsOpenResponse holds a single-use Socket Mode URL.
type AppsConnectionsOpenResponse struct {
	URL string `json:"url"`
}

type ChatPostMessageRequest struct {
	Channel     string          `json:"channel"`
	Text        string          `json:"text,omitempty"`
	ThreadTS    string          `json:"thread_ts,omitempty"`
	Blocks      json.RawMessage `json:"blocks,omitempty"`
	Mrkdwn      *bool           `json:"mrkdwn,omitempty"`
	UnfurlLinks *bool           `json:"unfurl_links,omitempty"`
}

type ChatPostMessageResponse struct {
	Channel string          `json:"channel"`
	TS      string          `json:"ts"`
	Message json.RawMessage `json:"message,omitempty"`
}

type ConversationsInfoRequest struct {
	Channel           string
	IncludeLocale     bool
	IncludeNumMembers bool
}

type Conversation struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	IsChannel  bool   `json:"is_channel,omitempty"`
	IsPrivate  bool   `json:"is_private,omitempty"`
	IsArchived bool   `json:"is_archived,omitempty"`
	IsIM       bool   `json:"is_im,omitempty"`
	NumMembers int    `json:"num_members,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

type ConversationsInfoResponse struct {
	Channel Conversation `json:"channel"`
}
