package contract

import (
	"errors"
	"fmt"

	"github.com/cartorio-ai/cartorio/pkg/decision"
)

var (
	// ErrNotFound is returned when the contract id is unknown.
	ErrNotFound = errors.New("contract not found")

	// ErrIllegalTransition is returned when the requested state change is
	// not reachable from the current state. The contract is unchanged and
	// no history row is written.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrConcurrentTransition is returned to the loser of a transition race
	// on the same contract. The caller retries with fresh state; nothing is
	// silently overwritten.
	ErrConcurrentTransition = errors.New("concurrent transition conflict")
)

// BlockedError reports a transition stopped by a Deny, Hold, or Revoke
// decision. State is untouched; the decision's reason is surfaced verbatim.
type BlockedError struct {
	Decision decision.Decision
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	if e.Decision.Reason != "" {
		return fmt.Sprintf("transition blocked by %s: %s", e.Decision.Kind, e.Decision.Reason)
	}
	return fmt.Sprintf("transition blocked by %s", e.Decision.Kind)
}
