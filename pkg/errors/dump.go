package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDetail is the Postgres diagnostic carried by a driver error.
type PGDetail struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

// Report flattens an error chain for structured logs.
type Report struct {
	Message  string    `json:"message"`
	Code     Code      `json:"code,omitempty"`
	Kind     Kind      `json:"kind,omitempty"`
	Chain    []string  `json:"chain,omitempty"`
	Postgres *PGDetail `json:"postgres,omitempty"`
}

// Describe reports err's code, kind, the type and text of each link in its
// chain and, when a pgx or lib/pq error is inside, the Postgres detail.
func Describe(err error) Report {
	if err == nil {
		return Report{}
	}
	r := Report{Message: err.Error(), Kind: KindOf(err), Postgres: postgresDetail(err)}
	if typed := As(err); typed != nil {
		r.Code = typed.Code()
	}
	for link := err; link != nil; link = stdErrors.Unwrap(link) {
		r.Chain = append(r.Chain, fmt.Sprintf("%T: %v", link, link))
	}
	return r
}

func postgresDetail(err error) *PGDetail {
	if pgErr := (*pgconn.PgError)(nil); stdErrors.As(err, &pgErr) {
		return &PGDetail{
			Code:       pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
			Message:    pgErr.Message,
		}
	}
	if pqErr := (*pq.Error)(nil); stdErrors.As(err, &pqErr) {
		return &PGDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
