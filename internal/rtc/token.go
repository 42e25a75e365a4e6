package rtc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TokenBuilder issues channel tokens the client hands to the transport SDK
// when joining. A token binds one identity to one channel for a limited time
// and is signed with the app certificate.
type TokenBuilder struct {
	appID       string
	certificate []byte
	ttl         time.Duration
	clock       func() time.Time
}

func NewTokenBuilder(appID, certificate string, ttl time.Duration) (*TokenBuilder, error) {
	if appID == "" || certificate == "" {
		return nil, errors.New("app id and certificate are required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenBuilder{
		appID:       appID,
		certificate: []byte(certificate),
		ttl:         ttl,
		clock:       time.Now,
	}, nil
}

type tokenClaims struct {
	AppID     string `json:"app_id"`
	Channel   string `json:"channel"`
	Identity  string `json:"identity"`
	ExpiresAt int64  `json:"exp"`
}

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Build returns a signed token for identity to join channel.
func (b *TokenBuilder) Build(channel, identity string) (string, error) {
	if channel == "" || identity == "" {
		return "", errors.New("channel and identity are required")
	}
	claims := tokenClaims{
		AppID:     b.appID,
		Channel:   channel,
		Identity:  identity,
		ExpiresAt: b.clock().UTC().Add(b.ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + b.sign(body), nil
}

// Verify checks the signature and expiry and returns the channel and identity
// the token was issued for.
func (b *TokenBuilder) Verify(token string) (channel, identity string, err error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", "", ErrTokenInvalid
	}
	if !hmac.Equal([]byte(b.sign(body)), []byte(sig)) {
		return "", "", ErrTokenInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", "", ErrTokenInvalid
	}
	var claims tokenClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", "", ErrTokenInvalid
	}
	if claims.AppID != b.appID {
		return "", "", ErrTokenInvalid
	}
	if b.clock().UTC().Unix() >= claims.ExpiresAt {
		return "", "", ErrTokenExpired
	}
	return claims.Channel, claims.Identity, nil
}

func (b *TokenBuilder) sign(body string) string {
	mac := hmac.New(sha256.New, b.certificate)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
