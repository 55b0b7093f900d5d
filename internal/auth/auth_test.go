package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookieName = "newswatcher_token_test"

var testSigningSecretKey = []byte("test-signing-secret-key")

func TestIssueAndVerify(t *testing.T) {
	theAuth := New(testCookieName, testSigningSecretKey, time.Hour)

	tokenString, err := theAuth.Issue("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	userID, err := theAuth.Verify(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestVerifyExpiredToken(t *testing.T) {
	theAuth := New(testCookieName, testSigningSecretKey, -time.Minute)

	tokenString, err := theAuth.Issue("user-1")
	require.NoError(t, err)

	_, err = theAuth.Verify(tokenString)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyMalformedToken(t *testing.T) {
	theAuth := New(testCookieName, testSigningSecretKey, time.Hour)

	testCases := []struct {
		name        string
		tokenString string
	}{
		{name: "empty", tokenString: ""},
		{name: "garbage", tokenString: "not-a-token"},
		{name: "missing_parts", tokenString: "a.b"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := theAuth.Verify(testCase.tokenString)
			assert.ErrorIs(t, err, ErrTokenMalformed)
		})
	}
}

func TestVerifyTokenSignedWithAnotherSecret(t *testing.T) {
	theAuth := New(testCookieName, testSigningSecretKey, time.Hour)
	otherAuth := New(testCookieName, []byte("another-secret-key"), time.Hour)

	tokenString, err := otherAuth.Issue("user-1")
	require.NoError(t, err)

	_, err = theAuth.Verify(tokenString)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
