// Package auth derives session owners from API credentials.
//
// The owner hash only partitions which sessions a credential sees. Anyone
// holding the same key computes the same hash, so it is not access control.
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"SessionChat/internal/backend"
	"SessionChat/internal/message"
)

// ErrInvalidCredential is returned when the trial call with a credential fails
var ErrInvalidCredential = errors.New("invalid credential")

// TrialPrompt is the message sent to check a credential
const TrialPrompt = "Hello!"

// OwnerHash returns the hex SHA-256 of the credential
func OwnerHash(credential string) string {
	h := sha256.New()
	h.Write([]byte(credential))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Validate accepts the credential only if one trial call through b succeeds
func Validate(ctx context.Context, b backend.Backend, credential string) error {
	_, err := b.Complete(ctx, credential, []message.Message{message.Human(TrialPrompt)})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return nil
}
