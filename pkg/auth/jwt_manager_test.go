package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	userID := uuid.New()

	token, err := m.Generate(userID, "teacher")
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "teacher", claims.Role)

	exp, err := m.Expiry(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	other, err := NewJWTManager("other", time.Hour).Generate(uuid.New(), "student")
	require.NoError(t, err)
	_, err = m.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTManager("secret", -time.Minute).Generate(uuid.New(), "student")
	require.NoError(t, err)
	_, err = m.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractTokenFromHeader(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc": true,
		"bearer abc": true,
		"Bearer ":    false,
		"Basic abc":  false,
		"":           false,
	}
	for header, ok := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		token, err := ExtractTokenFromHeader(req)
		if ok {
			assert.NoError(t, err, header)
			assert.Equal(t, "abc", token)
		} else {
			assert.Error(t, err, header)
		}
	}
}
