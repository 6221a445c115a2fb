// internal/game/errors.go
package game

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a referenced session or table does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation error")
)

// Rule names reported by ValidationError.
const (
	RuleIncompletePair     = "incomplete_pair"
	RuleDuplicatePlayer    = "duplicate_player"
	RuleUnknownStatus      = "unknown_status"
	RuleHandAlreadyOpen    = "hand_already_open"
	RuleNoOpenHand         = "no_open_hand"
	RuleTableFinished      = "table_finished"
	RuleSessionClosed      = "session_closed"
	RuleInvalidPoints      = "invalid_points"
	RuleHandEndBeforeStart = "hand_end_before_start"
	RuleGameDecided        = "game_decided"
)

// ValidationError reports which invariant a mutation request violated.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(rule, format string, args ...interface{}) error {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func notFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
