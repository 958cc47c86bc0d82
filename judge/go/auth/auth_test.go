package auth

import (
	"context"
	"regexp"
	"testing"

	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/easyctf/openctf-judge/judge/go/db/memory"
	"github.com/easyctf/openctf-judge/judge/go/types"
	"github.com/stretchr/testify/require"
)

func TestCapabilitiesHas_DoesContainCapability_ReturnsTrue(t *testing.T) {
	unittest.SmallTest(t)
	require.True(t, Capabilities{Reader}.Has(Reader))
}

func TestCapabilitiesHas_DoesNotContainCapability_ReturnsFalse(t *testing.T) {
	unittest.SmallTest(t)
	require.False(t, Capabilities{Reader}.Has(Jury))
}

func TestCapabilitiesHas_CapabilitiesIsEmpty_ReturnsFalse(t *testing.T) {
	unittest.SmallTest(t)
	require.False(t, Capabilities{}.Has(Master))
}

func TestFromKey_AllFlagsSet_ReturnsAllCapabilities(t *testing.T) {
	unittest.SmallTest(t)
	k := &types.APIKey{Jury: true, Reader: true, Master: true}
	require.Equal(t, AllCapabilities, FromKey(k))
}

func TestFromKey_NoFlagsSet_ReturnsEmpty(t *testing.T) {
	unittest.SmallTest(t)
	require.Empty(t, FromKey(&types.APIKey{}))
}

func TestGenerateKey_ReturnsThirtyTwoLowerHexCharacters(t *testing.T) {
	unittest.SmallTest(t)
	key, err := GenerateKey()
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), key)

	again, err := GenerateKey()
	require.NoError(t, err)
	require.NotEqual(t, key, again)
}

// newAuthorizerForTest returns an Authorizer over a store holding the given
// keys.
func newAuthorizerForTest(t *testing.T, keys ...*types.APIKey) *Authorizer {
	d := memory.New()
	for _, k := range keys {
		require.NoError(t, d.PutAPIKey(context.Background(), k))
	}
	return New(d)
}

func TestRequire_EmptyToken_ReturnsErrForbidden(t *testing.T) {
	unittest.SmallTest(t)
	a := newAuthorizerForTest(t)
	_, err := a.Require(context.Background(), "", Reader)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRequire_UnknownToken_ReturnsErrForbidden(t *testing.T) {
	unittest.SmallTest(t)
	a := newAuthorizerForTest(t)
	_, err := a.Require(context.Background(), "0123456789abcdef0123456789abcdef", Reader)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRequire_InactiveKey_ReturnsErrForbidden(t *testing.T) {
	unittest.SmallTest(t)
	a := newAuthorizerForTest(t, &types.APIKey{
		Key:    "0123456789abcdef0123456789abcdef",
		Name:   "revoked",
		Active: false,
		Master: true,
	})
	_, err := a.Require(context.Background(), "0123456789abcdef0123456789abcdef", Master)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRequire_CapabilityMismatch_ReturnsErrForbidden(t *testing.T) {
	unittest.SmallTest(t)
	a := newAuthorizerForTest(t, &types.APIKey{
		Key:    "0123456789abcdef0123456789abcdef",
		Name:   "worker",
		Active: true,
		Jury:   true,
	})
	_, err := a.Require(context.Background(), "0123456789abcdef0123456789abcdef", Master)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRequire_AnyOfCapabilities_ReturnsKey(t *testing.T) {
	unittest.SmallTest(t)
	a := newAuthorizerForTest(t, &types.APIKey{
		Key:    "0123456789abcdef0123456789abcdef",
		Name:   "scoreboard",
		Active: true,
		Reader: true,
	})
	key, err := a.Require(context.Background(), "0123456789abcdef0123456789abcdef", Jury, Reader)
	require.NoError(t, err)
	require.Equal(t, "scoreboard", key.Name)
}
