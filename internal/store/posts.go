package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"discuss/internal/models"
)

const postColumns = `posts.*,
	(SELECT COUNT(*) FROM post_likes pl WHERE pl.post_id = posts.id) AS total_likes,
	(SELECT COUNT(*) FROM comments c WHERE c.post_id = posts.id) AS comment_count`

// LikeState is the outcome of a like toggle.
type LikeState struct {
	Liked      bool  `json:"liked"`
	TotalLikes int64 `json:"total_likes"`
	// PostID is the post the liked target lives on.
	PostID uint `json:"-"`
}

// CreatePost inserts p. The category must exist.
func (s *Store) CreatePost(ctx context.Context, p *models.Post) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Category{}, p.CategoryID).Error; err != nil {
			return notFound(err)
		}
		if err := create(tx, p); err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		return nil
	})
}

func (s *Store) posts(ctx context.Context, viewerID uint, scope func(*gorm.DB) *gorm.DB) ([]models.Post, error) {
	var posts []models.Post
	q := s.db.WithContext(ctx).
		Select(postColumns).
		Preload("Author").
		Preload("Category")
	err := scope(q).
		Order("posts.created_at DESC, posts.id DESC").
		Limit(listLimit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	if err := s.markLikedPosts(ctx, viewerID, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// PostsInCategory lists a category's posts, newest first. viewerID may be
// 0 for anonymous viewers.
func (s *Store) PostsInCategory(ctx context.Context, categoryID, viewerID uint) ([]models.Post, error) {
	return s.posts(ctx, viewerID, func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.category_id = ?", categoryID)
	})
}

func (s *Store) PostsBy(ctx context.Context, authorID, viewerID uint) ([]models.Post, error) {
	return s.posts(ctx, viewerID, func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.author_id = ?", authorID)
	})
}

// LikedPosts lists the posts userID has liked.
func (s *Store) LikedPosts(ctx context.Context, userID, viewerID uint) ([]models.Post, error) {
	return s.posts(ctx, viewerID, func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.id IN (SELECT post_id FROM post_likes WHERE user_id = ?)", userID)
	})
}

func (s *Store) PostByID(ctx context.Context, id, viewerID uint) (*models.Post, error) {
	var p models.Post
	err := s.db.WithContext(ctx).
		Select(postColumns).
		Preload("Author").
		Preload("Category").
		First(&p, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	one := []models.Post{p}
	if err := s.markLikedPosts(ctx, viewerID, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (s *Store) markLikedPosts(ctx context.Context, viewerID uint, posts []models.Post) error {
	if viewerID == 0 || len(posts) == 0 {
		return nil
	}
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	var liked []uint
	err := s.db.WithContext(ctx).Model(&models.PostLike{}).
		Where("user_id = ? AND post_id IN ?", viewerID, ids).
		Pluck("post_id", &liked).Error
	if err != nil {
		return err
	}
	set := make(map[uint]bool, len(liked))
	for _, id := range liked {
		set[id] = true
	}
	for i := range posts {
		posts[i].Liked = set[posts[i].ID]
	}
	return nil
}

// DeletePost removes the post with its comments and likes. Only the author
// may delete; the post is returned in every case it exists so callers can
// redirect to its category.
func (s *Store) DeletePost(ctx context.Context, id, actorID uint) (*models.Post, error) {
	var p models.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			return notFound(err)
		}
		if p.AuthorID != actorID {
			return ErrNotOwner
		}
		steps := []string{
			`DELETE FROM comment_likes WHERE comment_id IN (SELECT id FROM comments WHERE post_id = ?)`,
			`DELETE FROM comments WHERE post_id = ?`,
			`DELETE FROM post_likes WHERE post_id = ?`,
			`DELETE FROM posts WHERE id = ?`,
		}
		for _, q := range steps {
			if err := tx.Exec(q, id).Error; err != nil {
				return fmt.Errorf("delete post %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil && p.ID == 0 {
		return nil, err
	}
	return &p, err
}

// TogglePostLike flips userID's membership in the post's like-set.
func (s *Store) TogglePostLike(ctx context.Context, postID, userID uint) (LikeState, error) {
	st := LikeState{PostID: postID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Post{}, postID).Error; err != nil {
			return notFound(err)
		}
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := create(tx, &models.PostLike{PostID: postID, UserID: userID}); err != nil {
				return fmt.Errorf("like post %d: %w", postID, err)
			}
			st.Liked = true
		}
		return tx.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&st.TotalLikes).Error
	})
	return st, err
}
