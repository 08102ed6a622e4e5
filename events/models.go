package events

import "encoding/json"

// Event is the inner event of an Events API callback. Raw holds the full
// JSON for fields not modelled here.
type Event struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	User    string          `json:"user,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Text    string          `json:"text,omitempty"`
	TS      string          `json:"ts,omitempty"`
	EventTS string          `json:"event_ts,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// EventCallback is an Events API push, over Socket Mode or HTTP.
type EventCallback struct {
	Type         string `json:"type"`
	TeamID       string `json:"team_id"`
	APIAppID     string `json:"api_app_id"`
	EventID      string `json:"event_id"`
	EventTime    int64  `json:"event_time"`
	EnterpriseID string `json:"enterprise_id,omitempty"`
	Event        Event  `json:"event"`
}

// UnmarshalJSON keeps the raw inner event.
func (e *EventCallback) UnmarshalJSON(data []byte) error {
	type plain EventCallback
	var aux struct {
		plain
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = EventCallback(aux.plain)
	if len(aux.Event) > 0 {
		if err := json.Unmarshal(aux.Event, &e.Event); err != nil {
			return err
		}
		e.Event.Raw = aux.Event
	}
	return nil
}

type InteractionUser struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	TeamID   string `json:"team_id,omitempty"`
}

type InteractionTeam struct {
	ID     string `json:"id"`
	Domain string `json:"domain,omitempty"`
}

// InteractionEvent is a block action, shortcut, view submission or similar.
type InteractionEvent struct {
	Type        string          `json:"type"`
	TriggerID   string          `json:"trigger_id,omitempty"`
	CallbackID  string          `json:"callback_id,omitempty"`
	ResponseURL string          `json:"response_url,omitempty"`
	User        InteractionUser `json:"user"`
	Team        InteractionTeam `json:"team"`
	Actions     json.RawMessage `json:"actions,omitempty"`
	View        json.RawMessage `json:"view,omitempty"`
}

// SlashCommand is a slash command invocation.
type SlashCommand struct {
	Command     string `json:"command"`
	Text        string `json:"text"`
	TeamID      string `json:"team_id"`
	TeamDomain  string `json:"team_domain,omitempty"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name,omitempty"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name,omitempty"`
	APIAppID    string `json:"api_app_id,omitempty"`
	ResponseURL string `json:"response_url,omitempty"`
	TriggerID   string `json:"trigger_id,omitempty"`
}

// CommandResponse is sent back in a slash command ack.
type CommandResponse struct {
	ResponseType string          `json:"response_type,omitempty"` // "ephemeral" or "in_channel"
	Text         string          `json:"text,omitempty"`
	Blocks       json.RawMessage `json:"blocks,omitempty"`
}

// Push types sent over the HTTP Events API.
const (
	PushURLVerification = "url_verification"
	PushEventCallback   = "event_callback"
	PushAppRateLimited  = "app_rate_limited"
)

// URLVerification is the handshake sent when an events URL is configured.
type URLVerification struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	Challenge string `json:"challenge"`
}

// AppRateLimited reports that pushes to this app are being dropped.
type AppRateLimited struct {
	Type              string `json:"type"`
	TeamID            string `json:"team_id"`
	APIAppID          string `json:"api_app_id"`
	MinuteRateLimited int64  `json:"minute_rate_limited"`
}
