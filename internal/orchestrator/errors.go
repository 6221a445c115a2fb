package orchestrator

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/velada/internal/game"
)

var (
	// ErrPersistence wraps any failure reported by the store.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotActive is returned by intents issued before a session is loaded.
	ErrNotActive = errors.New("no session loaded")

	// errStale marks a fetch whose result belonged to an older generation and was dropped.
	errStale = errors.New("stale read model generation")
)

// ErrorKind classifies an IntentError for the UI.
type ErrorKind string

const (
	KindNotFound    ErrorKind = "not_found"
	KindValidation  ErrorKind = "validation"
	KindPersistence ErrorKind = "persistence"
)

// IntentError is the dismissible, user-facing error surfaced on the read model.
type IntentError struct {
	Intent string
	Kind   ErrorKind
	Rule   string // set for validation errors
	Err    error
}

func (e *IntentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Intent, e.Err)
}

func (e *IntentError) Unwrap() error {
	return e.Err
}

// Message returns a short explanation suitable for showing to a player.
func (e *IntentError) Message() string {
	switch e.Kind {
	case KindValidation:
		var verr *game.ValidationError
		if errors.As(e.Err, &verr) {
			return verr.Message
		}
		return e.Err.Error()
	case KindNotFound:
		return "the session or table no longer exists"
	default:
		return fmt.Sprintf("could not %s, please try again", intentLabels[e.Intent])
	}
}

var intentLabels = map[string]string{
	intentLoad:          "load the session",
	intentRefresh:       "refresh the session",
	intentStartNewRound: "start a new round",
	intentAddTable:      "add the table",
	intentChangeStatus:  "change the session status",
	intentStartHand:     "start the hand",
	intentScoreHand:     "score the hand",
}

func classify(intent string, err error) *IntentError {
	ie := &IntentError{Intent: intent, Err: err}
	var verr *game.ValidationError
	switch {
	case errors.As(err, &verr):
		ie.Kind = KindValidation
		ie.Rule = verr.Rule
	case errors.Is(err, game.ErrNotFound):
		ie.Kind = KindNotFound
	default:
		ie.Kind = KindPersistence
	}
	return ie
}

func persistence(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
