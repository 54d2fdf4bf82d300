package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the stores react to.
const (
	ErDupEntry        = 1062
	ErLockWaitTimeout = 1205
	ErLockDeadlock    = 1213
)

func mysqlNumber(err error) (uint16, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}

// IsDuplicateKey reports a unique index violation.
func IsDuplicateKey(err error) bool {
	n, ok := mysqlNumber(err)
	return ok && n == ErDupEntry
}

// IsLockConflict reports errors that InnoDB raises when concurrent transactions
// collide; the whole transaction can be re-run.
func IsLockConflict(err error) bool {
	n, ok := mysqlNumber(err)
	return ok && (n == ErLockDeadlock || n == ErLockWaitTimeout)
}

// IsUnavailable reports that the database could not be reached at all.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}
