package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "ironclad/pkg/domain-errors"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	prefix, secret, raw, err := Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "ick_"+prefix+"_"))

	gotPrefix, gotSecret, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, prefix, gotPrefix)
	assert.Equal(t, secret, gotSecret)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"ick",
		"ick_deadbeef",
		"ick__secret",
		"sk_deadbeef_secret",
		"ick_nothex!!_secret",
		"ick_dead_secret",
	} {
		_, _, err := Parse(raw)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestParseKeepsUnderscoresInSecret(t *testing.T) {
	prefix, secret, err := Parse("ick_0a1b2c3d_ab_cd_ef")
	require.NoError(t, err)
	assert.Equal(t, "0a1b2c3d", prefix)
	assert.Equal(t, "ab_cd_ef", secret)
}

func TestHashVerify(t *testing.T) {
	hash, err := Hash("s3cret", bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, Verify("s3cret", hash))

	err = Verify("wrong", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = Hash("", bcrypt.MinCost)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
