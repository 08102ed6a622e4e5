// Package events holds the push payloads shared by Socket Mode and the HTTP
// Events API, plus an http.Handler for apps that receive pushes over HTTP.
//
// Requests are authenticated with the app signing secret: the signature is
// an HMAC-SHA256 of "v0:<timestamp>:<body>" sent as X-Slack-Signature, and
// requests older than Verifier.MaxAge are rejected.
package events
