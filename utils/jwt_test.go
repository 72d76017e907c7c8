package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateVendorToken(secret, "eatery-1", "owner@eatery.test", time.Hour)
	require.NoError(t, err)

	claims, err := ParseVendorToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "eatery-1", claims.VendorID)
	assert.Equal(t, "owner@eatery.test", claims.Email)
}

func TestParseVendorToken_Rejects(t *testing.T) {
	secret := []byte("test-secret")

	expired, err := GenerateVendorToken(secret, "eatery-1", "a@b.c", -time.Minute)
	require.NoError(t, err)
	_, err = ParseVendorToken(secret, expired)
	assert.Error(t, err)

	good, err := GenerateVendorToken(secret, "eatery-1", "a@b.c", time.Hour)
	require.NoError(t, err)
	_, err = ParseVendorToken([]byte("other"), good)
	assert.Error(t, err)

	_, err = ParseVendorToken(nil, good)
	assert.Error(t, err)

	_, err = GenerateVendorToken(nil, "eatery-1", "a@b.c", time.Hour)
	assert.Error(t, err)
}
