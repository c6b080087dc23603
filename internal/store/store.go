package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/pavelanni/surveyprep/internal/model"
)

// Driver is a database/sql driver name.
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverPgx    Driver = "pgx"
	DriverPQ     Driver = "postgres"
)

var (
	ErrNoHITs         = errors.New("no HIT ids")
	ErrUnsupportedURI = errors.New("unsupported database URI")
	ErrUnknownColumn  = errors.New("unknown participants column")
)

// ParseDriver maps a --db-driver flag value to a Driver. Empty selects the
// URI's default.
func ParseDriver(name string) (Driver, error) {
	switch strings.ToLower(name) {
	case "":
		return "", nil
	case "sqlite":
		return DriverSQLite, nil
	case "pgx":
		return DriverPgx, nil
	case "pq", "postgres":
		return DriverPQ, nil
	}
	return "", fmt.Errorf("unknown database driver %q", name)
}

// ParseURI converts an SQLAlchemy style database URI into a driver and DSN.
// Postgres URIs use pgx unless override selects lib/pq.
func ParseURI(uri string, override Driver) (Driver, string, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return "", "", fmt.Errorf("%q: %w", redact(uri), ErrUnsupportedURI)
	}
	dialect, _, _ := strings.Cut(strings.ToLower(scheme), "+")
	switch dialect {
	case "sqlite":
		// sqlite:///rel.db is relative, sqlite:////abs.db absolute.
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			path = ":memory:"
		}
		return DriverSQLite, path, nil
	case "postgresql", "postgres":
		d := DriverPgx
		if override == DriverPQ {
			d = DriverPQ
		}
		return d, "postgres://" + rest, nil
	}
	return "", "", fmt.Errorf("%q: %w", redact(uri), ErrUnsupportedURI)
}

// redact hides the password of a URI for error messages.
func redact(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return uri
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return uri
	}
	return scheme + "://" + user + ":***@" + host
}

// Store reads participant records from an experiment server database.
type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens a sqlite database file, or an in-memory one for ":memory:".
func New(dbPath string) (*Store, error) {
	return open(context.Background(), DriverSQLite, dbPath+"?_pragma=busy_timeout(5000)")
}

// Open connects to the database behind an SQLAlchemy style URI.
func Open(ctx context.Context, uri string, override Driver) (*Store, error) {
	driver, dsn, err := ParseURI(uri, override)
	if err != nil {
		return nil, err
	}
	return open(ctx, driver, dsn)
}

func open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// Each sqlite connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() Driver { return s.driver }

// participantColumns is the psiTurk participants table layout.
var participantColumns = []string{
	"uniqueid", "assignmentid", "workerid", "hitid", "ipaddress",
	"browser", "platform", "language", "cond", "counterbalance",
	"codeversion", "beginhit", "beginexp", "endhit", "bonus",
	"status", "mode", "datastring",
}

// CreateSchema creates the participants table if it does not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS participants (
		uniqueid VARCHAR(128) PRIMARY KEY,
		assignmentid VARCHAR(128) NOT NULL,
		workerid VARCHAR(128) NOT NULL,
		hitid VARCHAR(128) NOT NULL,
		ipaddress VARCHAR(128),
		browser VARCHAR(128),
		platform VARCHAR(128),
		language VARCHAR(128),
		cond INTEGER,
		counterbalance INTEGER,
		codeversion VARCHAR(128),
		beginhit TIMESTAMP,
		beginexp TIMESTAMP,
		endhit TIMESTAMP,
		bonus FLOAT,
		status INTEGER,
		mode VARCHAR(128),
		datastring TEXT
	)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create participants table: %w", err)
	}
	return nil
}

func (s *Store) placeholder(i int) string {
	if s.driver == DriverSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", i)
}

// InsertParticipant stores one participants row. Keys of fields must be
// participants columns.
func (s *Store) InsertParticipant(ctx context.Context, fields *model.Map) error {
	known := make(map[string]bool, len(participantColumns))
	for _, c := range participantColumns {
		known[c] = true
	}
	cols := fields.Keys()
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		if !known[c] {
			return fmt.Errorf("insert participant: %q: %w", c, ErrUnknownColumn)
		}
		marks[i] = s.placeholder(i + 1)
		v, _ := fields.Get(c)
		args[i] = sqlArg(v)
	}
	query := fmt.Sprintf(`INSERT INTO participants (%s) VALUES (%s)`,
		strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func sqlArg(v model.Value) any {
	switch v.Kind() {
	case model.KindNull:
		return nil
	case model.KindNumber:
		n, _ := v.Num()
		return n
	case model.KindBool:
		b, _ := v.Truth()
		return b
	default:
		return v.Text()
	}
}

// BuildHITQuery returns the participants query for a set of HIT ids and
// its arguments. Rows are ordered by status, condition and start time.
func (s *Store) BuildHITQuery(hits []string) (string, []any, error) {
	if len(hits) == 0 {
		return "", nil, ErrNoHITs
	}
	marks := make([]string, len(hits))
	args := make([]any, len(hits))
	for i, h := range hits {
		marks[i] = s.placeholder(i + 1)
		args[i] = h
	}
	query := `SELECT * FROM participants WHERE hitid IN (` + strings.Join(marks, ", ") +
		`) ORDER BY status DESC, cond ASC, beginexp DESC`
	return query, args, nil
}

// FetchParticipants returns the participants of the given HITs that have a
// recorded datastring. Fields keep the table's column order.
func (s *Store) FetchParticipants(ctx context.Context, hits []string) ([]model.Participant, error) {
	query, args, err := s.BuildHITQuery(hits)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("participant columns: %w", err)
	}
	var out []model.Participant
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		fields := model.NewMap()
		for i, c := range cols {
			fields.Set(strings.ToLower(c), fromSQL(raw[i]))
		}
		p := model.Participant{Fields: fields}
		if _, ok := p.DataString(); !ok {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func fromSQL(v any) model.Value {
	switch x := v.(type) {
	case nil:
		return model.Null()
	case []byte:
		return model.String(string(x))
	case string:
		return model.String(x)
	case int64:
		return model.Number(float64(x))
	case int32:
		return model.Number(float64(x))
	case float64:
		return model.Number(x)
	case float32:
		return model.Number(float64(x))
	case bool:
		return model.Bool(x)
	case time.Time:
		return model.String(x.Format("2006-01-02 15:04:05.999999"))
	default:
		return model.String(fmt.Sprint(x))
	}
}
