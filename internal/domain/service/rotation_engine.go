package service

import (
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
)

// RotationEngine decides key promotion and retirement for a KeySet snapshot.
// It holds no state and performs no I/O; applying a decision is the job of
// application.RotationApplier.
type RotationEngine struct{}

// NewRotationEngine creates a RotationEngine.
func NewRotationEngine() RotationEngine {
	return RotationEngine{}
}

// Decide evaluates keySet at now.
//
// A key is expired once its RetiredAt is at or before now. When the active key is
// expired and NextKid names a key that is not itself expired, NextKid is promoted.
// Every expired key except the promoted one is listed in KeysToRetire.
//
// If the active kid does not resolve the result is a no-op flagged Inconsistent.
// If the active key is expired but nothing can be promoted, the active key stays
// and ActiveOverdueWithoutSuccessor is set so the caller can raise an alert.
func (RotationEngine) Decide(keySet *models.KeySet, now time.Time) models.RotationDecision {
	active, ok := keySet.Active()
	if !ok {
		return models.RotationDecision{KeysToRetire: []string{}, Inconsistent: true}
	}

	var decision models.RotationDecision
	if active.IsRetiredAt(now) {
		if next, ok := keySet.Key(keySet.NextKid); ok && keySet.NextKid != keySet.ActiveKid && !next.IsRetiredAt(now) {
			decision.NewActiveKid = keySet.NextKid
		} else {
			decision.ActiveOverdueWithoutSuccessor = true
		}
	}

	decision.KeysToRetire = []string{}
	for _, kid := range keySet.Kids() {
		if kid == decision.NewActiveKid {
			continue
		}
		if keySet.Keys[kid].IsRetiredAt(now) {
			decision.KeysToRetire = append(decision.KeysToRetire, kid)
		}
	}
	return decision
}
