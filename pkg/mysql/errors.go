package mysql

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"

	sqldriver "github.com/go-sql-driver/mysql"
)

// IsSourceUnavailable classifies connection-level failures, which are retried
// with backoff instead of failing the worker.
func IsSourceUnavailable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sqldriver.ErrInvalidConn) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
