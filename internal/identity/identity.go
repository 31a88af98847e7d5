package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/tshuldberg/MyLife-sub003/config"
	"github.com/tshuldberg/MyLife-sub003/pkg/errors"
)

const tokenVersion = "v1"

// Claims is the payload asserted by a verified actor token.
type Claims struct {
	UserID   string    `json:"userId"`
	IssuedAt time.Time `json:"issuedAt"`
}

type tokenPayload struct {
	UserID   string `json:"userId"`
	IssuedAt string `json:"issuedAt"`
}

// Verifier issues and validates signed actor identity tokens and
// arbitrates the legacy bare-user-id fallback.
type Verifier struct {
	cfg config.Identity
	now func() time.Time
}

func NewVerifier(cfg config.Identity) *Verifier {
	return &Verifier{cfg: cfg, now: time.Now}
}

// Issue builds a v1.<payload>.<signature> token asserting userID.
func (v *Verifier) Issue(userID string) (string, error) {
	if v.cfg.Secret == "" {
		return "", errors.ErrIdentityUnconfigured
	}
	payload := tokenPayload{
		UserID:   userID,
		IssuedAt: v.now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, "encode token payload", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	sig := v.sign(encoded)
	return tokenVersion + "." + encoded + "." + sig, nil
}

// Verify checks structure, signature and payload of a token. Each
// failure mode rejects with its own error so callers can log the reason.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if v.cfg.Secret == "" {
		return nil, errors.ErrIdentityUnconfigured
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != tokenVersion {
		return nil, errors.ErrMalformedToken
	}
	encoded, sig := parts[1], parts[2]

	expected := v.sign(encoded)
	if len(sig) != len(expected) {
		return nil, errors.ErrBadTokenSignature
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return nil, errors.ErrBadTokenSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.ErrBadTokenPayload
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.ErrBadTokenPayload
	}
	if payload.UserID == "" || payload.IssuedAt == "" {
		return nil, errors.ErrBadTokenPayload
	}
	issuedAt, err := time.Parse(time.RFC3339, payload.IssuedAt)
	if err != nil {
		return nil, errors.ErrBadTokenPayload
	}

	return &Claims{UserID: payload.UserID, IssuedAt: issuedAt}, nil
}

// ResolveActor resolves "who is acting" from an optional token and an
// optional bare user id. A verified token wins; a bare user id is only
// honored while the legacy fallback policy allows it.
func (v *Verifier) ResolveActor(token, userID string, required bool) (string, error) {
	if token != "" {
		claims, err := v.Verify(token)
		if err != nil {
			return "", err
		}
		if userID != "" && userID != claims.UserID {
			return "", errors.ErrActorMismatch
		}
		return claims.UserID, nil
	}

	if userID != "" {
		if !v.legacyFallbackAllowed() {
			return "", errors.ErrLegacyIdentityDenied
		}
		return userID, nil
	}

	if required {
		return "", errors.ErrIdentityRequired
	}
	return "", nil
}

// legacyFallbackAllowed resolves the migration policy in priority
// order: explicit override, strict mode, fallback expiry, allow.
func (v *Verifier) legacyFallbackAllowed() bool {
	switch v.cfg.LegacyOverride {
	case "allow":
		return true
	case "deny":
		return false
	}
	if v.cfg.Strict {
		return false
	}
	if v.cfg.FallbackExpiry != "" {
		expiry, err := time.Parse(time.RFC3339, v.cfg.FallbackExpiry)
		if err != nil {
			// An unparseable expiry fails closed.
			return false
		}
		return v.now().Before(expiry)
	}
	return true
}

func (v *Verifier) sign(encodedPayload string) string {
	mac := hmac.New(sha256.New, []byte(v.cfg.Secret))
	mac.Write([]byte(encodedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}
