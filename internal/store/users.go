package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"discuss/internal/models"
)

func nicknameTaken(tx *gorm.DB, nickname string, exceptID uint) (bool, error) {
	var n int64
	q := tx.Model(&models.User{}).Where("nickname = ?", nickname)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// NicknameTaken reports whether another user than exceptID already uses
// nickname. Pass 0 to check against every user.
func (s *Store) NicknameTaken(ctx context.Context, nickname string, exceptID uint) (bool, error) {
	return nicknameTaken(s.db.WithContext(ctx), nickname, exceptID)
}

// CreateUser inserts u and fills in its ID. A duplicate nickname yields
// ErrNicknameTaken.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nicknameTaken(tx, u.Nickname, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrNicknameTaken
		}
		if err := create(tx, u); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
}

func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UserByNickname(ctx context.Context, nickname string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("nickname = ?", nickname).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UpdateProfile stores the editable profile fields of u.
func (s *Store) UpdateProfile(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nicknameTaken(tx, u.Nickname, u.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrNicknameTaken
		}
		res := tx.Model(&models.User{ID: u.ID}).Select("nickname", "username", "first_name", "last_name", "date_of_birth", "avatar").
			Updates(map[string]any{
				"nickname":      u.Nickname,
				"username":      u.Nickname,
				"first_name":    u.FirstName,
				"last_name":     u.LastName,
				"date_of_birth": u.DateOfBirth,
				"avatar":        u.Avatar,
			})
		if res.Error != nil {
			return fmt.Errorf("update profile: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		u.Username = u.Nickname
		return nil
	})
}

func (s *Store) TouchLogin(ctx context.Context, id uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{ID: id}).Update("last_login", at).Error
}

// SetStaff grants or revokes access to the admin views.
func (s *Store) SetStaff(ctx context.Context, nickname string, staff bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("nickname = ?", nickname).Update("is_staff", staff)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
