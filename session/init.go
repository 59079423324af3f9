package session

import (
	"github.com/ruteri/sev-launch-kit/interfaces"
	"go.uber.org/atomic"
)

var initialized atomic.Bool

// Init performs the one-time process-wide self-check: it probes the
// system entropy source so a misconfigured environment fails at startup
// rather than mid-handshake. Init is idempotent and safe to call from
// multiple goroutines; later calls after a success return nil
// immediately.
func Init() error {
	if initialized.Load() {
		return nil
	}
	var probe [16]byte
	if err := (interfaces.SystemEntropy{}).Fill(probe[:]); err != nil {
		return err
	}
	initialized.Store(true)
	return nil
}
