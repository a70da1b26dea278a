package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"discuss/internal/models"
)

const categoryColumns = `categories.*,
	(SELECT COUNT(*) FROM posts p WHERE p.category_id = categories.id) AS post_count`

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	if err := create(s.db.WithContext(ctx), c); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// Categories lists all categories, newest first.
func (s *Store) Categories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	err := s.db.WithContext(ctx).
		Select(categoryColumns).
		Preload("CreatedBy").
		Order("categories.created_at DESC, categories.id DESC").
		Limit(listLimit).
		Find(&cats).Error
	return cats, err
}

func (s *Store) CategoriesBy(ctx context.Context, userID uint) ([]models.Category, error) {
	var cats []models.Category
	err := s.db.WithContext(ctx).
		Select(categoryColumns).
		Where("categories.created_by_id = ?", userID).
		Order("categories.created_at DESC, categories.id DESC").
		Limit(listLimit).
		Find(&cats).Error
	return cats, err
}

func (s *Store) CategoryByID(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	err := s.db.WithContext(ctx).
		Select(categoryColumns).
		Preload("CreatedBy").
		First(&c, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// DeleteCategory removes the category with its posts, their comments and
// every like attached to them. Only the creator may delete; on ErrNotOwner
// the category is returned untouched.
func (s *Store) DeleteCategory(ctx context.Context, id, actorID uint) (*models.Category, error) {
	var c models.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, id).Error; err != nil {
			return notFound(err)
		}
		if c.CreatedByID != actorID {
			return ErrNotOwner
		}
		steps := []string{
			`DELETE FROM comment_likes WHERE comment_id IN (
				SELECT c.id FROM comments c JOIN posts p ON p.id = c.post_id WHERE p.category_id = ?)`,
			`DELETE FROM comments WHERE post_id IN (SELECT id FROM posts WHERE category_id = ?)`,
			`DELETE FROM post_likes WHERE post_id IN (SELECT id FROM posts WHERE category_id = ?)`,
			`DELETE FROM posts WHERE category_id = ?`,
			`DELETE FROM categories WHERE id = ?`,
		}
		for _, q := range steps {
			if err := tx.Exec(q, id).Error; err != nil {
				return fmt.Errorf("delete category %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil && c.ID == 0 {
		return nil, err
	}
	return &c, err
}
