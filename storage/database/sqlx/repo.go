package sqlxrepos

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/0xDevansh/aries-week/core"
)

// base is embedded by every repository of this package.
type base struct {
	db *sqlx.DB
}

// getExec returns the executor the service passed (usually a transaction), else the DB.
func (b base) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		switch exec := svcExec[0].(type) {
		case *sqlx.Tx:
			return exec
		case *sqlx.DB:
			return exec
		case *sql.Tx:
			return &sqlx.Tx{Tx: exec, Mapper: b.db.Mapper}
		}
	}
	return b.db
}

func newID() string {
	return uuid.New().String()
}

// isUniqueViolation reports whether err is a postgres unique_violation on constraint (any when empty).
func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// whereBuilder accumulates AND-ed conditions with positional args.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

// add appends cond, where each "?" is replaced by the next positional parameter.
func (w *whereBuilder) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
