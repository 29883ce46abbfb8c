package entitlement

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Execer is the subset of pgxpool.Pool used by PostgresRPC.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresRPC grants entitlements by calling the Postgres function directly.
type PostgresRPC struct {
	db   Execer
	stmt string
}

// NewPostgresRPC builds a backend calling function, optionally schema-qualified.
func NewPostgresRPC(db Execer, function string) (*PostgresRPC, error) {
	if db == nil {
		return nil, errors.New("entitlement: postgres pool is required")
	}
	fn := strings.TrimSpace(function)
	if !identifierPattern.MatchString(fn) {
		return nil, fmt.Errorf("entitlement: invalid rpc function name %q", function)
	}
	ident := pgx.Identifier(strings.Split(fn, "."))
	return &PostgresRPC{
		db:   db,
		stmt: fmt.Sprintf("SELECT %s(user_id => $1)", ident.Sanitize()),
	}, nil
}

// Statement returns the SQL sent for each grant.
func (p *PostgresRPC) Statement() string { return p.stmt }

// Grant executes the function for accountRef.
func (p *PostgresRPC) Grant(ctx context.Context, accountRef string) error {
	if _, err := p.db.Exec(ctx, p.stmt, accountRef); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			err = fmt.Errorf("postgres %s: %s: %w", pgErr.Code, pgErr.Message, err)
		}
		return &DownstreamError{Backend: "postgres", AccountRef: accountRef, Err: err}
	}
	return nil
}
