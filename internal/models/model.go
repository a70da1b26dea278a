package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Nickname     string `gorm:"size:50;uniqueIndex;not null"`
	Username     string `gorm:"size:150;uniqueIndex;not null"`
	Email        string `gorm:"size:254;not null"`
	FirstName    string `gorm:"size:150;not null"`
	LastName     string `gorm:"size:150;not null"`
	DateOfBirth  *time.Time
	Avatar       string    `gorm:"size:255"`
	PasswordHash string    `gorm:"not null"`
	IsStaff      bool      `gorm:"not null;default:false"`
	DateJoined   time.Time `gorm:"autoCreateTime"`
	LastLogin    *time.Time
}

// BeforeSave keeps the login identifier in step with the nickname.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.Nickname != "" {
		u.Username = u.Nickname
	}
	return nil
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Category struct {
	ID          uint      `gorm:"primaryKey"`
	Name        string    `gorm:"size:50;not null"`
	Description string    `gorm:"type:text;not null"`
	Icon        string    `gorm:"size:255"`
	CreatedByID uint      `gorm:"not null;index"`
	CreatedBy   User      `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `gorm:"index"`

	PostCount int `gorm:"->;-:migration"`
}

type Post struct {
	ID         uint      `gorm:"primaryKey"`
	CategoryID uint      `gorm:"not null;index"`
	Category   Category  `gorm:"constraint:OnDelete:CASCADE"`
	AuthorID   uint      `gorm:"not null;index"`
	Author     User      `gorm:"constraint:OnDelete:CASCADE"`
	Text       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"index"`

	TotalLikes   int  `gorm:"->;-:migration"`
	CommentCount int  `gorm:"->;-:migration"`
	Liked        bool `gorm:"-"`
}

type Comment struct {
	ID        uint      `gorm:"primaryKey"`
	PostID    uint      `gorm:"not null;index"`
	Post      Post      `gorm:"constraint:OnDelete:CASCADE"`
	AuthorID  uint      `gorm:"not null;index"`
	Author    User      `gorm:"constraint:OnDelete:CASCADE"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`

	TotalLikes int  `gorm:"->;-:migration"`
	Liked      bool `gorm:"-"`
}

// PostLike is one member of a post's like-set.
type PostLike struct {
	PostID    uint `gorm:"primaryKey;autoIncrement:false"`
	Post      Post `gorm:"constraint:OnDelete:CASCADE"`
	UserID    uint `gorm:"primaryKey;autoIncrement:false;index"`
	User      User `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

// CommentLike is one member of a comment's like-set.
type CommentLike struct {
	CommentID uint    `gorm:"primaryKey;autoIncrement:false"`
	Comment   Comment `gorm:"constraint:OnDelete:CASCADE"`
	UserID    uint    `gorm:"primaryKey;autoIncrement:false;index"`
	User      User    `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

type Session struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    uint      `gorm:"not null;index"`
	User      User      `gorm:"constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// All lists every model in migration order.
func All() []any {
	return []any{
		&User{},
		&Category{},
		&Post{},
		&Comment{},
		&PostLike{},
		&CommentLike{},
		&Session{},
	}
}
