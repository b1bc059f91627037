package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies engine errors so transports can map them without string matching.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation: malformed input, retry with corrected input.
	KindValidation
	// KindAuthorization: caller or counterparty not allowed.
	KindAuthorization
	// KindState: the round is not in the phase the operation needs.
	KindState
	// KindOracle: fee or gas budget insufficient, or the oracle refused the request.
	KindOracle
	KindNotFound
	// KindRefund: the operation succeeded but returning overpaid value did not.
	KindRefund
)

var kindNames = map[Kind]string{
	KindInternal:      "internal",
	KindValidation:    "validation",
	KindAuthorization: "authorization",
	KindState:         "state",
	KindOracle:        "oracle",
	KindNotFound:      "not_found",
	KindRefund:        "refund",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrClosingNotInFuture = errors.New("closing time must be in the future")
	ErrNoOpenRound        = errors.New("no round exists")
	ErrNotWhitelisted     = errors.New("counterparty is not whitelisted")
	ErrMissingCaller      = errors.New("caller is required")
	ErrBettingClosed      = errors.New("betting is closed for the current round")
	ErrBettingOpen        = errors.New("betting is still open")
	ErrAlreadyRequested   = errors.New("randomness already requested")
	ErrNotRequested       = errors.New("randomness not requested")
	ErrAlreadyResolved    = errors.New("round already resolved")
	ErrRandomnessPending  = errors.New("randomness not settled yet")
	ErrGasBelowFloor      = errors.New("callback gas budget below floor")
	ErrInsufficientFee    = errors.New("insufficient fee")
	ErrRoundNotFound      = errors.New("round not found")
	ErrBetNotFound        = errors.New("bet not found")
	ErrNothingToRefund    = errors.New("no pending refund")
	ErrSnapshotGap        = errors.New("snapshot ids are not dense")
)

// Error carries the kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of an engine error, KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
