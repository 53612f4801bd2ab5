package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrDuplicate is returned when an insert hits a unique key.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrUnknownUser is returned when a write references a user row that
	// does not exist.
	ErrUnknownUser = errors.New("unknown user")
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrNoReferencedRow = 1452
)

func isDuplicate(err error) bool {
	return isMySQLError(err, mysqlErrDuplicateEntry)
}

func isMissingReference(err error) bool {
	return isMySQLError(err, mysqlErrNoReferencedRow)
}

func isMySQLError(err error, number uint16) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == number
}

type scanner interface {
	Scan(dest ...any) error
}
