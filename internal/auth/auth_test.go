package auth

import (
	"context"
	"errors"
	"testing"

	"SessionChat/internal/backend"
	"SessionChat/internal/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trialBackend struct {
	validKey string
	sent     []message.Message
}

func (b *trialBackend) Name() string { return "trial" }

func (b *trialBackend) Complete(_ context.Context, key string, msgs []message.Message) (*backend.Completion, error) {
	b.sent = msgs
	if key != b.validKey {
		return nil, &backend.APIError{Status: "401 Unauthorized"}
	}
	return &backend.Completion{Content: "hi"}, nil
}

func TestOwnerHash(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", OwnerHash("abc"))
	assert.Equal(t, OwnerHash("k1"), OwnerHash("k1"))
	assert.NotEqual(t, OwnerHash("k1"), OwnerHash("k2"))
}

func TestValidateAcceptsWorkingKey(t *testing.T) {
	b := &trialBackend{validKey: "good"}
	require.NoError(t, Validate(context.Background(), b, "good"))
	assert.Equal(t, []message.Message{message.Human(TrialPrompt)}, b.sent)
}

func TestValidateRejectsFailingKey(t *testing.T) {
	b := &trialBackend{validKey: "good"}
	err := Validate(context.Background(), b, "bad")
	require.ErrorIs(t, err, ErrInvalidCredential)

	var apiErr *backend.APIError
	assert.True(t, errors.As(err, &apiErr))
}
