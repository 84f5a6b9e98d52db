package ucilog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/uwb.hal/internal/httputil"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultWriteTimeout bounds a single insert so a locked database cannot
// stall the packet path.
const DefaultWriteTimeout = 500 * time.Millisecond

// Store keeps logged packets in a sqlite table.
type Store struct {
	db   *sql.DB
	path string
	// WriteTimeout bounds each Record; zero means DefaultWriteTimeout.
	WriteTimeout time.Duration
}

// Row is one stored packet.
type Row struct {
	LogID   int64           `json:"log_id"`
	Handle  uuid.UUID       `json:"handle"`
	Time    time.Time       `json:"time"`
	Type    uci.MessageType `json:"-"`
	GID     uci.GroupID     `json:"gid"`
	OID     uint8           `json:"oid"`
	Payload []byte          `json:"-"`
}

// OpenStore opens (creating if needed) the sqlite log at path and applies
// pending migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	s := &Store{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// MigrateUp applies every embedded migration not yet recorded.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Not closing m: it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version. It is 0 when no
// migration has run.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	diagf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Insert stores one entry.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uci_log (handle, logged_at, message_type, gid, oid, payload_len, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Handle.String(), e.Time.UnixNano(), e.Type.String(), int(e.GID), int(e.OID), len(e.Payload), e.Payload)
	if err != nil {
		return fmt.Errorf("insert uci_log: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first. A non-nil handle restricts
// the rows to that session.
func (s *Store) Recent(ctx context.Context, handle *uuid.UUID, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT log_id, handle, logged_at, message_type, gid, oid, payload FROM uci_log`
	args := []interface{}{}
	if handle != nil {
		query += ` WHERE handle = ?`
		args = append(args, handle.String())
	}
	query += ` ORDER BY log_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r     Row
			id    string
			nanos int64
			mt    string
			gid   int
			oid   int
		)
		if err := rows.Scan(&r.LogID, &id, &nanos, &mt, &gid, &oid, &r.Payload); err != nil {
			return nil, err
		}
		if r.Handle, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("row %d: %w", r.LogID, err)
		}
		r.Time = time.Unix(0, nanos)
		r.Type = parseMessageType(mt)
		r.GID = uci.GroupID(gid)
		r.OID = uint8(oid)
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseMessageType(s string) uci.MessageType {
	for t := uci.MessageTypeData; t <= uci.MessageTypeNotification; t++ {
		if t.String() == s {
			return t
		}
	}
	return uci.MessageType(0xff)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sink adapts the store to the Logger. Closing the sink leaves the database
// open; rows are committed as they are recorded.
func (s *Store) Sink() Sink { return storeSink{s} }

type storeSink struct{ s *Store }

func (ss storeSink) Record(e Entry) error {
	timeout := ss.s.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return ss.s.Insert(ctx, e)
}

func (storeSink) Close() error { return nil }

// AttachAdminRoutes mounts a tailsql console over the log and a JSON view of
// recent rows on the debug mux.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.db, &tailsql.DBOptions{
		Label: "UCI packet log",
	})
	debug.Handle("tailsql/", "SQL over the UCI packet log", tsql.NewMux())
	debug.HandleFunc("uci-log", "Recent UCI packets (?limit=N)", s.handleRecent)
	return nil
}

type recentRow struct {
	Row
	MessageType string `json:"message_type"`
	PayloadHex  string `json:"payload_hex"`
}

func (s *Store) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	rows, err := s.Recent(r.Context(), nil, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("query failed: %v", err))
		return
	}
	out := make([]recentRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, recentRow{Row: row, MessageType: row.Type.String(), PayloadHex: hex.EncodeToString(row.Payload)})
	}
	httputil.WriteJSONOK(w, out)
}
