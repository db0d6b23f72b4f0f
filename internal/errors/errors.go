// Package errors defines the error kinds the ledger returns. Every kind is a
// sentinel so callers can branch with errors.Is, and the typed wrappers carry
// enough detail (field, from/to status) for a specific user-facing message.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a ledger failure.
type Kind string

const (
	KindCreation          Kind = "creation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindAlreadyHeld       Kind = "already_held"
	KindIntegrity         Kind = "integrity"
	KindUnauthorized      Kind = "unauthorized"
	KindValidation        Kind = "validation"
)

// kindError is the sentinel type. Its identity is the kind.
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

var (
	ErrCreation          error = &kindError{KindCreation, "transaction could not be created"}
	ErrNotFound          error = &kindError{KindNotFound, "not found"}
	ErrInvalidTransition error = &kindError{KindInvalidTransition, "invalid status transition"}
	ErrAlreadyHeld       error = &kindError{KindAlreadyHeld, "transaction is already in escrow"}
	ErrIntegrity         error = &kindError{KindIntegrity, "ledger state changed or failed verification"}
	ErrUnauthorized      error = &kindError{KindUnauthorized, "not authorized for this action"}
	ErrValidation        error = &kindError{KindValidation, "validation failed"}
)

// LedgerError wraps a sentinel kind with a specific message and an optional cause.
type LedgerError struct {
	Kind    error
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// TransitionError reports a status change missing from the transition table.
type TransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// FieldError reports a malformed input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing entity and id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func Creation(msg string, cause error) error {
	return &LedgerError{Kind: ErrCreation, Message: msg, Err: cause}
}

func TransactionNotFound(id string) error {
	return &NotFoundError{Entity: "transaction", ID: id}
}

func EscrowNotFound(id string) error {
	return &NotFoundError{Entity: "escrow account", ID: id}
}

func DisputeNotFound(id string) error {
	return &NotFoundError{Entity: "dispute", ID: id}
}

func InvalidTransition(from, to string) error {
	return &TransitionError{Entity: "transaction", From: from, To: to}
}

// InvalidTransitionReason is InvalidTransition with an explanation for pairs
// the table allows but the calling operation does not.
func InvalidTransitionReason(from, to, reason string) error {
	return &TransitionError{Entity: "transaction", From: from, To: to, Reason: reason}
}

func AlreadyHeld(txID string) error {
	return &LedgerError{Kind: ErrAlreadyHeld, Message: fmt.Sprintf("transaction %s is already in escrow", txID)}
}

func Integrity(msg string) error {
	return &LedgerError{Kind: ErrIntegrity, Message: msg}
}

func Unauthorized(msg string) error {
	return &LedgerError{Kind: ErrUnauthorized, Message: msg}
}

func Validation(field, msg string) error {
	return &FieldError{Field: field, Message: msg}
}

// KindOf returns the kind of err, or "" for errors outside the taxonomy.
func KindOf(err error) Kind {
	for _, s := range []error{
		ErrCreation, ErrNotFound, ErrInvalidTransition, ErrAlreadyHeld,
		ErrIntegrity, ErrUnauthorized, ErrValidation,
	} {
		if stderrors.Is(err, s) {
			return s.(*kindError).kind
		}
	}
	return ""
}

// Details returns the diagnostic fields a caller can show next to the message.
func Details(err error) map[string]string {
	d := map[string]string{}
	var te *TransitionError
	if stderrors.As(err, &te) {
		d["from"] = te.From
		d["to"] = te.To
	}
	var fe *FieldError
	if stderrors.As(err, &fe) {
		d["field"] = fe.Field
	}
	var nf *NotFoundError
	if stderrors.As(err, &nf) {
		d["entity"] = nf.Entity
		d["id"] = nf.ID
	}
	return d
}
