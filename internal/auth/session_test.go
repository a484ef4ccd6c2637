package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	Init()
	playerID := uuid.New().String()

	token, err := CreateJWT(playerID)
	require.NoError(t, err)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, playerID, sub)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	Init()
	_, err := AuthenticateJWT("definitely-not-a-jwt")
	assert.Error(t, err)
}

func TestAuthenticateRejectsForeignKey(t *testing.T) {
	Init()
	token, err := CreateJWT(uuid.New().String())
	require.NoError(t, err)

	// Rotating the key pair invalidates everything signed before it.
	Init()
	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}
