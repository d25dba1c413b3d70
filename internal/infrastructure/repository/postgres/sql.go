package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/alliance"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/snapshot"
	"github.com/lib/pq"
)

// ErrDatabaseUnavailable is returned once every reconnect tier is exhausted.
var ErrDatabaseUnavailable = fmt.Errorf("database: %w", snapshot.ErrUnavailable)

const (
	codeForeignKeyViolation  = "23503"
	codeTooManyConnections   = "53300"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
	codeConnectionExceptionC = "08"
)

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func pqCode(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return "", false
	}
	return string(pqErr.Code), true
}

// isAllianceFKViolation matches a missing alliance row on any alliance_id
// style foreign key.
func isAllianceFKViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != codeForeignKeyViolation {
		return false
	}
	return strings.Contains(pqErr.Constraint, "alliance") || strings.Contains(pqErr.Detail, "alliances")
}

// mapWriteError turns driver errors into domain sentinels where callers act
// on them.
func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isAllianceFKViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, alliance.ErrMissing, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsReconnectable reports errors after which the pool should be rebuilt.
func IsReconnectable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if code, ok := pqCode(err); ok {
		switch {
		case strings.HasPrefix(code, codeConnectionExceptionC):
			return true
		case code == codeTooManyConnections, code == codeAdminShutdown, code == codeCannotConnectNow:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Poolers in transaction mode drop unnamed prepared statements between
// transactions; the statement is safe to retry once.
func isUnnamedPreparedStatementMissing(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pqCode(err); ok && code == "26000" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unnamed prepared statement does not exist") || strings.Contains(msg, "(26000)")
}

func isBindParameterMismatch(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "bind message supplies") && strings.Contains(msg, "prepared statement")
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil || *id <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idFromNull(v sql.NullInt64) *int64 {
	if !v.Valid || v.Int64 <= 0 {
		return nil
	}
	id := v.Int64
	return &id
}
