package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type ServiceError struct {
	Status  int
	Message string
}

func (e ServiceError) Error() string {
	return e.Message
}

func ErrNotFound(msg string) error {
	return ServiceError{Status: 404, Message: msg}
}

func ErrBadRequest(msg string) error {
	return ServiceError{Status: 400, Message: msg}
}

func ErrForbidden(msg string) error {
	return ServiceError{Status: 403, Message: msg}
}

func ErrUnauthorized(msg string) error {
	return ServiceError{Status: 401, Message: msg}
}

func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// RemoteKind classifies a failed call against the database.
type RemoteKind string

const (
	RemoteNetwork    RemoteKind = "network"
	RemoteConstraint RemoteKind = "constraint"
	RemotePermission RemoteKind = "permission"
	RemoteNotFound   RemoteKind = "not_found"
	RemoteInvalid    RemoteKind = "invalid"
)

type RemoteError struct {
	Kind   RemoteKind
	Table  string
	Op     string
	Detail string
	Err    error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Table, e.Kind)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRemote reports whether err is a RemoteError of the given kind.
func IsRemote(err error, kind RemoteKind) bool {
	var rerr *RemoteError
	return errors.As(err, &rerr) && rerr.Kind == kind
}

// classify turns a driver error into a RemoteError. SQLSTATE class 22 is a
// data exception such as a malformed uuid or an out of range number, class
// 23 is an integrity constraint violation, 42501 is insufficient_privilege.
func classify(table, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &RemoteError{Kind: RemoteNotFound, Table: table, Op: op, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "22":
			return &RemoteError{Kind: RemoteInvalid, Table: table, Op: op, Detail: pgErr.ColumnName, Err: err}
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "23":
			return &RemoteError{Kind: RemoteConstraint, Table: table, Op: op, Detail: pgErr.ConstraintName, Err: err}
		case pgErr.Code == "42501":
			return &RemoteError{Kind: RemotePermission, Table: table, Op: op, Err: err}
		}
	}
	return &RemoteError{Kind: RemoteNetwork, Table: table, Op: op, Err: err}
}
