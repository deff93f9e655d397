package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"

	"github.com/yanizio/reveal/internal/record"
)

// classify wraps connectivity failures with record.ErrUnavailable.  Query
// and constraint errors pass through unchanged.
func classify(err error) error {
	if err == nil || errors.Is(err, record.ErrUnavailable) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", record.ErrUnavailable, err)
	}
	return err
}

// isDuplicateKey recognises MySQL error 1062 (ER_DUP_ENTRY).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
