package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"discuss/internal/models"
)

const commentColumns = `comments.*,
	(SELECT COUNT(*) FROM comment_likes cl WHERE cl.comment_id = comments.id) AS total_likes`

// CreateComment inserts c. The post must exist.
func (s *Store) CreateComment(ctx context.Context, c *models.Comment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Post{}, c.PostID).Error; err != nil {
			return notFound(err)
		}
		if err := create(tx, c); err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		return nil
	})
}

// CommentsOnPost lists a post's comments, oldest first.
func (s *Store) CommentsOnPost(ctx context.Context, postID, viewerID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Select(commentColumns).
		Preload("Author").
		Where("comments.post_id = ?", postID).
		Order("comments.created_at ASC, comments.id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	if viewerID == 0 || len(comments) == 0 {
		return comments, nil
	}

	var liked []uint
	err = s.db.WithContext(ctx).Model(&models.CommentLike{}).
		Where("user_id = ? AND comment_id IN (SELECT id FROM comments WHERE post_id = ?)", viewerID, postID).
		Pluck("comment_id", &liked).Error
	if err != nil {
		return nil, err
	}
	set := make(map[uint]bool, len(liked))
	for _, id := range liked {
		set[id] = true
	}
	for i := range comments {
		comments[i].Liked = set[comments[i].ID]
	}
	return comments, nil
}

func (s *Store) CommentByID(ctx context.Context, id uint) (*models.Comment, error) {
	var c models.Comment
	err := s.db.WithContext(ctx).Select(commentColumns).Preload("Author").First(&c, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// DeleteComment removes the comment and its likes. Only the author may
// delete; the comment is returned whenever it exists so callers can
// redirect to its post.
func (s *Store) DeleteComment(ctx context.Context, id, actorID uint) (*models.Comment, error) {
	var c models.Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, id).Error; err != nil {
			return notFound(err)
		}
		if c.AuthorID != actorID {
			return ErrNotOwner
		}
		if err := tx.Exec(`DELETE FROM comment_likes WHERE comment_id = ?`, id).Error; err != nil {
			return fmt.Errorf("delete comment %d: %w", id, err)
		}
		if err := tx.Exec(`DELETE FROM comments WHERE id = ?`, id).Error; err != nil {
			return fmt.Errorf("delete comment %d: %w", id, err)
		}
		return nil
	})
	if err != nil && c.ID == 0 {
		return nil, err
	}
	return &c, err
}

// ToggleCommentLike flips userID's membership in the comment's like-set.
func (s *Store) ToggleCommentLike(ctx context.Context, commentID, userID uint) (LikeState, error) {
	var st LikeState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Comment
		if err := tx.Select("id", "post_id").First(&c, commentID).Error; err != nil {
			return notFound(err)
		}
		st.PostID = c.PostID

		res := tx.Where("comment_id = ? AND user_id = ?", commentID, userID).Delete(&models.CommentLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := create(tx, &models.CommentLike{CommentID: commentID, UserID: userID}); err != nil {
				return fmt.Errorf("like comment %d: %w", commentID, err)
			}
			st.Liked = true
		}
		return tx.Model(&models.CommentLike{}).Where("comment_id = ?", commentID).Count(&st.TotalLikes).Error
	})
	return st, err
}
