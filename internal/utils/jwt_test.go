package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("s3cret", time.Hour)

	token, err := svc.GenerateToken("reporting")
	require.NoError(t, err)

	subject, err := svc.ValidateToken(*token)
	require.NoError(t, err)
	assert.Equal(t, "reporting", *subject)
}

func TestJWTRejectsBadTokens(t *testing.T) {
	svc := NewJWTService("s3cret", time.Hour)

	other, err := NewJWTService("other", time.Hour).GenerateToken("reporting")
	require.NoError(t, err)
	_, err = svc.ValidateToken(*other)
	assert.Error(t, err)

	expired, err := NewJWTService("s3cret", -time.Minute).GenerateToken("reporting")
	require.NoError(t, err)
	_, err = svc.ValidateToken(*expired)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestMD5Hash(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", MD5Hash(""))
	assert.Len(t, MD5Hash("mongoscan"), 32)
}
