package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	clienterrors "github.com/abdolence/slack-morphism-go/errors"
)

const (
	// SignatureHeader carries "v0=<hex hmac>".
	SignatureHeader = "X-Slack-Signature"

	// TimestampHeader carries the request time in unix seconds.
	TimestampHeader = "X-Slack-Request-Timestamp"

	// DefaultMaxAge is how old a signed request may be.
	DefaultMaxAge = 5 * time.Minute

	signatureVersion = "v0"
)

// ErrEmptySecret is returned when a Verifier has no signing secret.
var ErrEmptySecret = errors.New("signing secret is empty")

// Verifier checks request signatures.
type Verifier struct {
	secret  []byte
	maxAge  time.Duration
	nowFunc func() time.Time
}

// NewVerifier creates a verifier. A zero maxAge uses DefaultMaxAge.
func NewVerifier(secret string, maxAge time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Verifier{secret: []byte(secret), maxAge: maxAge, nowFunc: time.Now}, nil
}

// Sign returns the signature header value for body at timestamp.
func (v *Verifier) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body and rejects stale or future
// timestamps outside MaxAge.
func (v *Verifier) Verify(signature string, body []byte, timestamp string) error {
	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return clienterrors.New(clienterrors.ErrCodeSignature, "invalid request timestamp",
			clienterrors.WithCause(err))
	}
	age := v.nowFunc().Sub(time.Unix(secs, 0))
	if age > v.maxAge || age < -v.maxAge {
		return clienterrors.New(clienterrors.ErrCodeSignature, "request timestamp outside allowed window",
			clienterrors.WithMetadata("age", age.String()))
	}

	if !strings.HasPrefix(signature, signatureVersion+"=") {
		return clienterrors.New(clienterrors.ErrCodeSignature, "unsupported signature version")
	}
	if !hmac.Equal([]byte(signature), []byte(v.Sign(timestamp, body))) {
		return clienterrors.New(clienterrors.ErrCodeSignature, "signature mismatch")
	}
	return nil
}

// VerifyRequest verifies using the request headers.
func (v *Verifier) VerifyRequest(header http.Header, body []byte) error {
	return v.Verify(header.Get(SignatureHeader), body, header.Get(TimestampHeader))
}
