package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// listQuery appends optional time filters, ordering and paging to a base
// SELECT on a table with the given timestamp column.
type listQuery struct {
	sb   strings.Builder
	args []any
	ts   string
}

func newListQuery(base, tsColumn string) *listQuery {
	q := &listQuery{ts: tsColumn}
	q.sb.WriteString(base)
	q.sb.WriteString(" WHERE 1=1")
	return q
}

func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *listQuery) since(t *time.Time) *listQuery {
	if t != nil {
		q.sb.WriteString(" AND " + q.ts + " >= " + q.arg(*t))
	}
	return q
}

func (q *listQuery) until(t *time.Time) *listQuery {
	if t != nil {
		q.sb.WriteString(" AND " + q.ts + " <= " + q.arg(*t))
	}
	return q
}

func (q *listQuery) before(t time.Time) *listQuery {
	q.sb.WriteString(" AND " + q.ts + " < " + q.arg(t))
	return q
}

func (q *listQuery) page(opts domain.ListOpts) *listQuery {
	q.sb.WriteString(" ORDER BY " + q.ts + " DESC")
	if opts.Limit > 0 {
		q.sb.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sb.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
	return q
}

func (q *listQuery) ascending() *listQuery {
	q.sb.WriteString(" ORDER BY " + q.ts + " ASC")
	return q
}

func (q *listQuery) String() string { return q.sb.String() }
