package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// TriggerVerifier checks the shared secret presented by the scheduler that
// starts processor batches. A bcrypt hash takes precedence over a plain token.
type TriggerVerifier struct {
	token []byte
	hash  []byte
}

// NewTriggerVerifier creates a verifier from a plain token, a bcrypt hash, or both.
func NewTriggerVerifier(token, hash string) (*TriggerVerifier, error) {
	if token == "" && hash == "" {
		return nil, errors.New("trigger token or trigger token hash is required")
	}
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, errors.New("trigger token hash is not a bcrypt hash")
		}
	}
	return &TriggerVerifier{token: []byte(token), hash: []byte(hash)}, nil
}

// Verify returns nil when presented matches the configured secret.
func (v *TriggerVerifier) Verify(presented string) error {
	if presented == "" {
		return ErrMissingToken
	}
	if len(v.hash) > 0 {
		if bcrypt.CompareHashAndPassword(v.hash, []byte(presented)) != nil {
			return ErrInvalidTrigger
		}
		return nil
	}
	if subtle.ConstantTimeCompare(v.token, []byte(presented)) != 1 {
		return ErrInvalidTrigger
	}
	return nil
}

// HashTrigger produces the bcrypt hash stored in auth.trigger_token_hash.
func HashTrigger(token string, cost int) (string, error) {
	if token == "" {
		return "", errors.New("token cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
