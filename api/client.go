package api

import (
	"context"
	"net/url"
	"strconv"

	clienterrors "github.com/abdolence/slack-morphism-go/errors"
)

// Client exposes Web API methods on top of an HTTPConnector.
type Client struct {
	connector *HTTPConnector
}

// NewClient creates a client sharing connector.
func NewClient(connector *HTTPConnector) *Client {
	return &Client{connector: connector}
}

// Connector returns the underlying connector.
func (c *Client) Connector() *HTTPConnector {
	return c.connector
}

// OpenSession binds token to the client for subsequent calls.
func (c *Client) OpenSession(token Token) *Session {
	return &Session{client: c, token: token}
}

// APITest calls api.test, which needs no token.
func (c *Client) APITest(ctx context.Context, req *APITestRequest) (*APITestResponse, error) {
	var resp APITestResponse
	if err := c.connector.Post(ctx, "api.test", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenConnection resolves a fresh Socket Mode URL with an app-level token.
func (c *Client) OpenConnection(ctx context.Context, token Token) (string, error) {
	resp, err := c.OpenSession(token).AppsConnectionsOpen(ctx)
	if err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", clienterrors.HTTPProtocol("apps.connections.open returned an empty url")
	}
	return resp.URL, nil
}

// Session is a Client bound to one token.
type Session struct {
	client *Client
	token  Token
}

// Token returns the session token.
func (s *Session) Token() Token {
	return s.token
}

func (s *Session) AuthTest(ctx context.Context) (*AuthTestResponse, error) {
	var resp AuthTestResponse
	if err := s.client.connector.Post(ctx, "auth.test", &s.token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AppsConnectionsOpen requires an app-level (xapp-) token.
func (s *Session) AppsConnectionsOpen(ctx context.Context) (*AppsConnectionsOpenResponse, error) {
	var resp AppsConnectionsOpenResponse
	if err := s.client.connector.Post(ctx, "apps.connections.open", &s.token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Session) ChatPostMessage(ctx context.Context, req *ChatPostMessageRequest) (*ChatPostMessageResponse, error) {
	if req == nil || req.Channel == "" {
		return nil, clienterrors.InvalidInput("chat.postMessage: channel is required")
	}
	var resp ChatPostMessageResponse
	if err := s.client.connector.Post(ctx, "chat.postMessage", &s.token, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Session) ConversationsInfo(ctx context.Context, req *ConversationsInfoRequest) (*ConversationsInfoResponse, error) {
	if req == nil || req.Channel == "" {
		return nil, clienterrors.InvalidInput("conversations.info: channel is required")
	}
	params := url.Values{"channel": {req.Channel}}
	if req.IncludeLocale {
		params.Set("include_locale", strconv.FormatBool(true))
	}
	if req.IncludeNumMembers {
		params.Set("include_num_members", strconv.FormatBool(true))
	}
	var resp ConversationsInfoResponse
	if err := s.client.connector.Get(ctx, "conversations.info", &s.token, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
