package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

// listQuery assembles a SELECT with optional time bounds and pagination.
// base must end with a WHERE clause; timeCol is the column Since/Until
// apply to.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(base string, args ...any) *listQuery {
	q := &listQuery{args: args}
	q.sb.WriteString(base)
	return q
}

func (q *listQuery) next(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *listQuery) where(cond string, v any) {
	q.sb.WriteString(" AND " + fmt.Sprintf(cond, q.next(v)))
}

func (q *listQuery) apply(timeCol string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.where(timeCol+" >= %s", *opts.Since)
	}
	if opts.Until != nil {
		q.where(timeCol+" <= %s", *opts.Until)
	}
	q.sb.WriteString(" ORDER BY " + timeCol + " DESC")
	if opts.Limit > 0 {
		q.sb.WriteString(" LIMIT " + q.next(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sb.WriteString(" OFFSET " + q.next(opts.Offset))
	}
}

func (q *listQuery) String() string {
	return q.sb.String()
}
