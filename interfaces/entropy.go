package interfaces

import (
	"crypto/rand"
	"fmt"
	"io"
)

// EntropySource supplies cryptographically secure random bytes. A source
// either fills the buffer completely or fails; partial fills are never
// returned to callers.
type EntropySource interface {
	// Fill overwrites b entirely with random bytes.
	Fill(b []byte) error
}

// entropyRetries bounds how often SystemEntropy retries a failed read
// before reporting ErrEntropy. There is no indefinite blocking.
const entropyRetries = 3

// SystemEntropy reads from the operating system CSPRNG. It is the source
// used whenever a caller does not supply one explicitly.
type SystemEntropy struct{}

// Fill implements EntropySource.
func (SystemEntropy) Fill(b []byte) error {
	var lastErr error
	for i := 0; i < entropyRetries; i++ {
		_, err := io.ReadFull(rand.Reader, b)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrEntropy, lastErr)
}
