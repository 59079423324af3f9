package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/sev-launch-kit/interfaces"
)

func TestKeyDerive(t *testing.T) {
	base := ZeroedKey(16)

	first, err := base.Derive(16, nil, "sev-master-secret")
	require.NoError(t, err, "derivation from a zeroed key must succeed")
	require.Equal(t, 16, first.Len(), "derived key length must match the request")

	again, err := base.Derive(16, nil, "sev-master-secret")
	require.NoError(t, err)
	assert.Equal(t, first.material, again.material, "derivation must be deterministic")

	other, err := base.Derive(16, nil, "sev-kek")
	require.NoError(t, err)
	assert.NotEqual(t, first.material, other.material, "different labels must yield different keys")

	ctx, err := base.Derive(16, []byte{1, 2, 3, 4}, "sev-master-secret")
	require.NoError(t, err)
	assert.NotEqual(t, first.material, ctx.material, "different contexts must yield different keys")

	long, err := base.Derive(48, nil, "sev-master-secret")
	require.NoError(t, err)
	require.Equal(t, 48, long.Len())
	assert.NotEqual(t, long.material[:16], first.material, "multi-block output differs from a single-block derivation")
}

func TestKeyDeriveEmpty(t *testing.T) {
	empty := NewKey(nil)
	_, err := empty.Derive(16, nil, "sev-kek")
	require.ErrorIs(t, err, interfaces.ErrCrypto, "derivation from an empty key must fail")

	_, err = empty.MAC([]byte("message"))
	require.ErrorIs(t, err, interfaces.ErrCrypto, "MAC with an empty key must fail")
}

func TestKeyMAC(t *testing.T) {
	key := NewKey([]byte{0x66, 0x32, 0x0d, 0xb7, 0x31, 0x58, 0xa3, 0x5a, 0x25, 0x5d, 0x05, 0x17, 0x58, 0xe9, 0x5e, 0xd4})
	msg := []byte("attestation payload")

	got, err := key.MAC(msg)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, key.material)
	mac.Write(msg)
	assert.Equal(t, mac.Sum(nil), got[:], "MAC must be HMAC-SHA-256 over the message")
}

func TestKeyCTR(t *testing.T) {
	key := ZeroedKey(16)
	var iv [16]byte
	iv[0] = 0x01

	plain := []byte("transport keys go here, 32 byte!")
	ct, err := key.CTR(iv, plain)
	require.NoError(t, err)
	require.Len(t, ct, len(plain))
	assert.NotEqual(t, plain, ct)

	back, err := key.CTR(iv, ct)
	require.NoError(t, err)
	assert.Equal(t, plain, back, "CTR must be its own inverse under the same IV")

	var iv2 [16]byte
	iv2[0] = 0x02
	other, err := key.CTR(iv2, plain)
	require.NoError(t, err)
	assert.NotEqual(t, ct, other, "a different IV must produce a different keystream")
}

func TestRandomKey(t *testing.T) {
	a, err := RandomKey(16, interfaces.SystemEntropy{})
	require.NoError(t, err)
	b, err := RandomKey(16, interfaces.SystemEntropy{})
	require.NoError(t, err)
	assert.NotEqual(t, a.material, b.material, "random keys must not repeat")

	a.Zeroize()
	assert.Zero(t, a.Len(), "zeroize must discard the material")
}
