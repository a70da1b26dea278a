package auth

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SQLStore keeps sessions in the sessions table created by db.Migrate.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, postgres: driver == "postgres"}
}

// bind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) bind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Save(ctx context.Context, id string, userID uint, expires time.Time) error {
	_, err := s.db.ExecContext(ctx, s.bind(`INSERT INTO sessions(id,user_id,expires_at) VALUES(?,?,?)`), id, userID, expires)
	return err
}

func (s *SQLStore) Load(ctx context.Context, id string) (uint, time.Time, error) {
	var uid int64
	var exp time.Time
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT user_id, expires_at FROM sessions WHERE id = ?`), id).Scan(&uid, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, ErrNoSession
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return uint(uid), exp, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM sessions WHERE id = ?`), id)
	return err
}

func (s *SQLStore) DeleteUser(ctx context.Context, userID uint) error {
	_, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM sessions WHERE user_id = ?`), userID)
	return err
}

func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM sessions WHERE expires_at < ?`), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
