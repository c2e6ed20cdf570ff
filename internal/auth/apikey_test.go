package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-key-secret-at-least-32-chars!!"

func TestKeyManager_IssueAndValidate(t *testing.T) {
	mgr := NewKeyManager(testSecret, 720*time.Hour)
	clientID := uuid.NewString()

	key, err := mgr.Issue(clientID)
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	claims, err := mgr.Validate(key)
	require.NoError(t, err)
	assert.Equal(t, clientID, claims.Subject)
	assert.Equal(t, "relaygate", claims.Issuer)
}

func TestKeyManager_ExpiredKey(t *testing.T) {
	mgr := NewKeyManager(testSecret, -time.Minute)
	key, err := mgr.Issue(uuid.NewString())
	require.NoError(t, err)

	_, err = mgr.Validate(key)
	assert.Error(t, err)
}

func TestKeyManager_WrongSecret(t *testing.T) {
	mgr := NewKeyManager(testSecret, time.Hour)
	key, _ := mgr.Issue(uuid.NewString())

	other := NewKeyManager("another-secret-that-is-32-chars!!!!", time.Hour)
	_, err := other.Validate(key)
	assert.Error(t, err)
}

func TestKeyManager_GarbageToken(t *testing.T) {
	mgr := NewKeyManager(testSecret, time.Hour)
	_, err := mgr.Validate("not-a-jwt")
	assert.Error(t, err)
}
