package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"LiveBoard/internal/shape"
)

const postgresSchema = `
create table if not exists rooms (
	id bigint primary key,
	session_key text unique
);
create table if not exists shapes (
	id bigserial primary key,
	room_id bigint not null,
	data text not null,
	created_at timestamptz not null default now()
);
create index if not exists shapes_room_idx on shapes(room_id, id);
`

const sqliteSchema = `
create table if not exists rooms (
	id integer primary key,
	session_key text unique
);
create table if not exists shapes (
	id integer primary key autoincrement,
	room_id integer not null,
	data text not null,
	created_at timestamp not null default current_timestamp
);
create index if not exists shapes_room_idx on shapes(room_id, id);
`

var placeholder = regexp.MustCompile(`\$\d+`)

// SQL stores shapes as JSON documents keyed by a database sequence id.
// Queries are written with $n placeholders and rebound for SQLite.
type SQL struct {
	db     *sql.DB
	schema string
	rebind bool
}

// OpenSQL connects to "sqlite:<path>" or a postgres:// url and migrates.
func OpenSQL(ctx context.Context, url string) (*SQL, error) {
	var s *SQL
	if path, ok := strings.CutPrefix(url, "sqlite:"); ok {
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite: %w", err)
		}
		// Every connection to :memory: is its own database.
		if path == ":memory:" || strings.Contains(path, "mode=memory") {
			db.SetMaxOpenConns(1)
		}
		s = &SQL{db: db, schema: sqliteSchema, rebind: true}
	} else {
		db, err := sql.Open("pgx", url)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		s = &SQL{db: db, schema: postgresSchema}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *SQL) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.schema)
	return err
}

func (s *SQL) q(query string) string {
	if !s.rebind {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

func encodeData(sh shape.Shape) (string, error) {
	sh.ID = 0
	data, err := shape.Encode(sh)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeData(id int64, data string) (shape.Shape, error) {
	sh, err := shape.Decode([]byte(data))
	if err != nil {
		return shape.Shape{}, fmt.Errorf("store: shape %d: %w", id, err)
	}
	return sh.Confirmed(id), nil
}

func (s *SQL) CreateShape(ctx context.Context, room int64, sh shape.Shape) (shape.Shape, error) {
	data, err := encodeData(sh)
	if err != nil {
		return shape.Shape{}, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, s.q(`insert into shapes(room_id, data) values($1,$2) returning id`), room, data).Scan(&id)
	if err != nil {
		return shape.Shape{}, err
	}
	return sh.Clone().Confirmed(id), nil
}

func (s *SQL) UpdateShape(ctx context.Context, room int64, sh shape.Shape) (shape.Shape, error) {
	if !sh.Stored() {
		return shape.Shape{}, ErrNoIdentity
	}
	data, err := encodeData(sh)
	if err != nil {
		return shape.Shape{}, err
	}
	res, err := s.db.ExecContext(ctx, s.q(`update shapes set data=$1 where id=$2 and room_id=$3`), data, sh.ID, room)
	if err != nil {
		return shape.Shape{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return shape.Shape{}, ErrNotFound
	}
	return sh.Clone().Confirmed(sh.ID), nil
}

func (s *SQL) DeleteShapes(ctx context.Context, room int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, s.q(`delete from shapes where room_id=$1 and id=$2`))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, room, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQL) DeleteAllShapes(ctx context.Context, room int64) error {
	_, err := s.db.ExecContext(ctx, s.q(`delete from shapes where room_id=$1`), room)
	return err
}

func (s *SQL) ListShapes(ctx context.Context, room int64) ([]shape.Shape, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`select id, data from shapes where room_id=$1 order by id`), room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shape.Shape
	for rows.Next() {
		var (
			id   int64
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		sh, err := decodeData(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *SQL) SetSessionKey(ctx context.Context, room int64, key string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`insert into rooms(id, session_key) values($1,$2) on conflict (id) do update set session_key = excluded.session_key`),
		room, key)
	return err
}

func (s *SQL) RoomBySessionKey(ctx context.Context, key string) (int64, error) {
	var room int64
	err := s.db.QueryRowContext(ctx, s.q(`select id from rooms where session_key=$1`), key).Scan(&room)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return room, err
}

func (s *SQL) Close() error { return s.db.Close() }
