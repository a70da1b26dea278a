// Package store is the persistence layer of the forum. Every exported
// method runs under the caller's context and maps storage failures onto the
// package's sentinel errors where the caller is expected to branch on them.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNotOwner      = errors.New("not the owner")
	ErrNicknameTaken = errors.New("nickname already taken")
)

// listLimit caps every unpaginated listing.
const listLimit = 200

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// create inserts v without touching its associations.
func create(tx *gorm.DB, v any) error {
	return tx.Omit(clause.Associations).Create(v).Error
}
