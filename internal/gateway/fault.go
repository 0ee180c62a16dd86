package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type FaultKind string

const (
	// FaultTransient covers network-ish failures with no business meaning;
	// callers surface a retryable message and leave local state untouched.
	FaultTransient FaultKind = "transient"
	// FaultVanished marks mutations against a parent another viewer deleted.
	FaultVanished FaultKind = "vanished"
	// FaultDenied marks security-policy rejections.
	FaultDenied FaultKind = "denied"
	// FaultInvalid marks locally detectable validation failures.
	FaultInvalid FaultKind = "invalid"
)

type Fault struct {
	Kind    FaultKind
	Message string
}

func (f *Fault) Error() string {
	return string(f.Kind) + ": " + f.Message
}

func NewFault(kind FaultKind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

var ErrNotFound = errors.New("row not found")

// Classify maps a gateway error into the fault taxonomy. Referential
// integrity violations look like a concurrently deleted parent from the
// client's point of view, so they share FaultVanished with pre-flight
// misses.
func Classify(err error) *Fault {
	if err == nil {
		return nil
	}
	var fault *Fault
	if errors.As(err, &fault) {
		return fault
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
		return &Fault{Kind: FaultVanished, Message: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Fault{Kind: FaultTransient, Message: err.Error()}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return &Fault{Kind: FaultVanished, Message: pgErr.Message}
		case "42501": // insufficient_privilege
			return &Fault{Kind: FaultDenied, Message: pgErr.Message}
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "violates foreign key") || strings.Contains(msg, "row-level security") {
		return &Fault{Kind: FaultVanished, Message: msg}
	}
	return &Fault{Kind: FaultTransient, Message: msg}
}

func IsVanished(err error) bool {
	f := Classify(err)
	return f != nil && f.Kind == FaultVanished
}
