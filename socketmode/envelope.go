package socketmode

import (
	"encoding/json"

	clienterrors "github.com/abdolence/slack-morphism-go/errors"
)

// EnvelopeType is the "type" tag of an inbound Socket Mode frame.
type EnvelopeType string

const (
	EnvelopeHello         EnvelopeType = "hello"
	EnvelopeDisconnect    EnvelopeType = "disconnect"
	EnvelopeEventsAPI     EnvelopeType = "events_api"
	EnvelopeInteractive   EnvelopeType = "interactive"
	EnvelopeSlashCommands EnvelopeType = "slash_commands"
)

// RequiresAck reports whether envelopes of this type must be acknowledged.
func (t EnvelopeType) RequiresAck() bool {
	switch t {
	case EnvelopeEventsAPI, EnvelopeInteractive, EnvelopeSlashCommands:
		return true
	default:
		return false
	}
}

// DebugInfo describes the server end of a connection.
type DebugInfo struct {
	Host                      string `json:"host,omitempty"`
	BuildNumber               int    `json:"build_number,omitempty"`
	ApproximateConnectionTime int    `json:"approximate_connection_time,omitempty"`
}

type ConnectionInfo struct {
	AppID string `json:"app_id,omitempty"`
}

// Envelope is one parsed text frame.
type Envelope struct {
	Type                   EnvelopeType    `json:"type"`
	EnvelopeID             string          `json:"envelope_id,omitempty"`
	Payload                json.RawMessage `json:"payload,omitempty"`
	AcceptsResponsePayload bool            `json:"accepts_response_payload,omitempty"`
	RetryAttempt           int             `json:"retry_attempt,omitempty"`
	RetryReason            string          `json:"retry_reason,omitempty"`

	// hello
	NumConnections int             `json:"num_connections,omitempty"`
	ConnectionInfo *ConnectionInfo `json:"connection_info,omitempty"`

	// disconnect
	Reason string `json:"reason,omitempty"`

	DebugInfo *DebugInfo `json:"debug_info,omitempty"`
}

// ParseEnvelope decodes a text frame. Unknown types and envelopes that need
// an ack but carry no id are protocol errors.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, clienterrors.SocketModeProtocol("malformed envelope", clienterrors.WithCause(err))
	}
	switch env.Type {
	case EnvelopeHello, EnvelopeDisconnect:
	case EnvelopeEventsAPI, EnvelopeInteractive, EnvelopeSlashCommands:
		if env.EnvelopeID == "" {
			return nil, clienterrors.SocketModeProtocol("envelope without envelope_id",
				clienterrors.WithMetadata("type", string(env.Type)))
		}
	default:
		return nil, clienterrors.SocketModeProtocol("unknown envelope type",
			clienterrors.WithMetadata("type", string(env.Type)))
	}
	return &env, nil
}

// Ack acknowledges one envelope, optionally with a response payload.
type Ack struct {
	EnvelopeID string      `json:"envelope_id"`
	Payload    interface{} `json:"payload,omitempty"`
}

// HelloEvent is delivered when a connection is ready.
type HelloEvent struct {
	NumConnections int
	ConnectionInfo ConnectionInfo
	DebugInfo      DebugInfo
}

// DisconnectEvent is delivered when the server announces it will close the
// connection.
type DisconnectEvent struct {
	Reason    string
	DebugInfo DebugInfo
}
