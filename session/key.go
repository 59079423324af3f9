package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ruteri/sev-launch-kit/interfaces"
)

// Key is an opaque fixed-length secret. Its length is fixed at
// construction; the bytes are never exposed except through the
// derivation and MAC operations below.
type Key struct {
	material []byte
}

// NewKey copies material into a fresh Key.
func NewKey(material []byte) *Key {
	k := &Key{material: make([]byte, len(material))}
	copy(k.material, material)
	return k
}

// ZeroedKey returns a Key of size all-zero bytes.
func ZeroedKey(size int) *Key {
	return &Key{material: make([]byte, size)}
}

// RandomKey returns a Key of size fresh random bytes from src.
func RandomKey(size int, src interfaces.EntropySource) (*Key, error) {
	k := &Key{material: make([]byte, size)}
	if err := src.Fill(k.material); err != nil {
		return nil, err
	}
	return k, nil
}

// Len returns the key length in bytes.
func (k *Key) Len() int { return len(k.material) }

// Zeroize overwrites the key material. The key is unusable afterwards.
func (k *Key) Zeroize() {
	for i := range k.material {
		k.material[i] = 0
	}
	k.material = k.material[:0]
}

// Derive computes a new key of length bytes from this key, the given
// context bytes, and a label, using the counter-mode KDF with an
// HMAC-SHA-256 PRF: block i is HMAC(secret, counter_i || label || 0x00 ||
// context || bitlen(output)), with the counter a little-endian uint32
// starting at 1 and the output truncated to length. The derivation is a
// pure function of its inputs; distinct labels yield independent keys.
func (k *Key) Derive(length int, context []byte, label string) (*Key, error) {
	if len(k.material) == 0 {
		return nil, fmt.Errorf("%w: cannot derive from empty key material", interfaces.ErrCrypto)
	}

	var bits [4]byte
	binary.LittleEndian.PutUint32(bits[:], uint32(length)*8)

	out := make([]byte, length)
	for off, ctr := 0, uint32(1); off < length; off, ctr = off+sha256.Size, ctr+1 {
		var counter [4]byte
		binary.LittleEndian.PutUint32(counter[:], ctr)

		prf := hmac.New(sha256.New, k.material)
		prf.Write(counter[:])
		prf.Write([]byte(label))
		prf.Write([]byte{0x00})
		prf.Write(context)
		prf.Write(bits[:])

		copy(out[off:], prf.Sum(nil))
	}

	return &Key{material: out}, nil
}

// CTR applies AES-128-CTR under this key with the given IV and returns
// the transformed bytes. CTR mode is symmetric, so the same call
// encrypts and decrypts; output length always equals input length.
func (k *Key) CTR(iv [16]byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCrypto, err)
	}
	out := make([]byte, len(data))
	cipher.NewCTR(block, iv[:]).XORKeyStream(out, data)
	return out, nil
}

// MAC computes the HMAC-SHA-256 of message under this key, returning the
// 32-byte tag.
func (k *Key) MAC(message []byte) ([]byte, error) {
	if len(k.material) == 0 {
		return nil, fmt.Errorf("%w: cannot MAC with empty key material", interfaces.ErrCrypto)
	}
	mac := hmac.New(sha256.New, k.material)
	mac.Write(message)
	return mac.Sum(nil), nil
}
