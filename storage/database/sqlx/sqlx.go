// Package sqlxrepos implements the repositories on PostgreSQL with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/gibigubae/registry/core"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type baseRepository struct {
	exec core.DBExecutor
}

func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func get(ctx context.Context, exec core.DBExecutor, dest interface{}, stmt sq.Sqlizer) error {
	q, args, err := stmt.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.GetContext(ctx, dest, q, args...)
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, stmt sq.Sqlizer) error {
	q, args, err := stmt.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.SelectContext(ctx, dest, q, args...)
}

// execAffected runs stmt and returns the number of affected rows.
func execAffected(ctx context.Context, exec core.DBExecutor, stmt sq.Sqlizer) (int64, error) {
	q, args, err := stmt.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

// sectionEq matches a section column ignoring case and surrounding whitespace.
func sectionEq(col, section string) sq.Sqlizer {
	return sq.Expr("LOWER(TRIM("+col+")) = LOWER(TRIM(?))", section)
}

func unclaimed(col string) sq.Sqlizer {
	return sq.Expr("COALESCE(TRIM(" + col + "), '') = ''")
}

// jsonMap is a JSONB object column.
type jsonMap map[string]interface{}

func (m jsonMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *jsonMap) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = jsonMap{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into a JSON object", src)
	}
	res := jsonMap{}
	if err := json.Unmarshal(data, &res); err != nil {
		return errors.Wrap(err, "decoding JSON object")
	}
	*m = res
	return nil
}
