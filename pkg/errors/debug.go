package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// maxChain bounds how many wrapped causes end up in a log line.
const maxChain = 8

// LogFields flattens err into structured log fields: the typed code and
// details when present, the unwrap chain, and the Postgres diagnostics of
// the first driver error found in the chain.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}

	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
		if details := typed.Details(); details != nil {
			fields["error_details"] = details
		}
	}

	var chain []string
	for e := err; e != nil && len(chain) < maxChain; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}

	for k, v := range pgFields(err) {
		fields[k] = v
	}
	return fields
}

func pgFields(err error) map[string]any {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return compact(map[string]string{
			"pg_code":       pgxErr.Code,
			"pg_table":      pgxErr.TableName,
			"pg_constraint": pgxErr.ConstraintName,
			"pg_detail":     pgxErr.Detail,
		})
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return compact(map[string]string{
			"pg_code":       string(pqErr.Code),
			"pg_table":      pqErr.Table,
			"pg_constraint": pqErr.Constraint,
			"pg_detail":     pqErr.Detail,
		})
	}
	return nil
}

func compact(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
