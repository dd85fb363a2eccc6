package alierdb

import (
	"errors"
	"fmt"
)

var (
	// ErrRollbackTx is returned from a Transaction block to request a clean
	// rollback; it is the one block error that is neither reported as a
	// database failure nor propagated to the caller.
	ErrRollbackTx = errors.New("alierdb: rollback requested")

	ErrNilConnector     = errors.New("alierdb: connector is nil")
	ErrEmptyAssignment  = errors.New("alierdb: update requires at least one assignment")
	ErrEmptyInsert      = errors.New("alierdb: insert requires at least one value")
	ErrNoJoinOperand    = errors.New("alierdb: join requires a table operand")
	ErrJoinedOperands   = errors.New("alierdb: cannot join two already-joined tables")
	ErrJoinCondition    = errors.New("alierdb: join requires exactly one of on/using")
	ErrJoinNoCondition  = errors.New("alierdb: cross and natural joins take no on/using")
	ErrForeignConnector = errors.New("alierdb: join operands belong to different databases")
	ErrUnknownTable     = errors.New("alierdb: table not found in schema")
	ErrTooManyParams    = errors.New("alierdb: more parameters than placeholders")
	ErrForeignStatement = errors.New("alierdb: prepared statement belongs to another database")
	ErrUnknownStatement = errors.New("alierdb: prepared statement not registered")
	ErrInvalidSchema    = errors.New("alierdb: schema must carry a tables list")
	ErrPrimaryKeyColumn = errors.New("alierdb: primary key references a missing column")
	ErrForeignKeyAction = errors.New("alierdb: unrecognized foreign key action")
	ErrPoolNotConnected = errors.New("alierdb: disconnect without a matching connect")
)

// DBError is the recognized database error kind: an expected failure coming
// out of the storage engine (constraint violation, connection refusal, bad
// statement). Every public verb converts it into the uniform
// {status:false, message} result instead of returning it. Anything that is
// not a DBError is treated as a programming error and surfaces as a plain
// Go error.
type DBError struct {
	Op      string // verb that failed: "execute", "connect", "commit", ...
	Message string
	Err     error // underlying driver error, if any
}

func (e *DBError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("alierdb: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("alierdb: %s: %s", e.Op, e.Message)
}

func (e *DBError) Unwrap() error { return e.Err }

// NewDBError wraps an expected storage-engine failure.
func NewDBError(op, message string, err error) *DBError {
	return &DBError{Op: op, Message: message, Err: err}
}

// AsDBError unwraps err into a DBError when it is one.
func AsDBError(err error) (*DBError, bool) {
	var dbe *DBError
	if errors.As(err, &dbe) {
		return dbe, true
	}
	return nil, false
}

// IsDBError reports whether err is a recognized database error.
func IsDBError(err error) bool {
	_, ok := AsDBError(err)
	return ok
}
