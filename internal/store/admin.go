package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"discuss/internal/models"
)

// Date buckets accepted by the admin "since" filter.
const (
	SinceToday = "today"
	SinceWeek  = "week"
	SinceMonth = "month"
	SinceYear  = "year"
)

// SinceBound returns the lower creation-time bound for bucket, relative to
// now. ok is false for an empty or unknown bucket.
func SinceBound(bucket string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch bucket {
	case SinceToday:
		return today, true
	case SinceWeek:
		return today.AddDate(0, 0, -7), true
	case SinceMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	case SinceYear:
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}

// AdminFilter narrows an admin listing. Zero values disable a criterion.
type AdminFilter struct {
	Query      string
	Since      string
	CategoryID uint
	Now        time.Time
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// search matches the query as a literal, case-insensitive substring of any
// of the columns.
func (f AdminFilter) search(q *gorm.DB, columns ...string) *gorm.DB {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	if query == "" {
		return q
	}
	p := "%" + likeEscaper.Replace(query) + "%"
	conds := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		conds[i] = "LOWER(" + c + `) LIKE ? ESCAPE '\'`
		args[i] = p
	}
	return q.Where("("+strings.Join(conds, " OR ")+")", args...)
}

func (f AdminFilter) since(q *gorm.DB, column string) *gorm.DB {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	if from, ok := SinceBound(f.Since, now); ok {
		q = q.Where(column+" >= ?", from)
	}
	return q
}

type Counts struct {
	Users      int64
	Categories int64
	Posts      int64
	Comments   int64
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	for _, step := range []struct {
		model any
		dst   *int64
	}{
		{&models.User{}, &c.Users},
		{&models.Category{}, &c.Categories},
		{&models.Post{}, &c.Posts},
		{&models.Comment{}, &c.Comments},
	} {
		if err := db.Model(step.model).Count(step.dst).Error; err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}

// AdminUsers searches nickname, email and names, ordered by nickname.
func (s *Store) AdminUsers(ctx context.Context, f AdminFilter) ([]models.User, error) {
	var users []models.User
	q := s.db.WithContext(ctx).Model(&models.User{})
	q = f.search(q, "nickname", "email", "first_name", "last_name")
	err := q.Order("nickname").Limit(listLimit).Find(&users).Error
	return users, err
}

// AdminCategories searches name and description.
func (s *Store) AdminCategories(ctx context.Context, f AdminFilter) ([]models.Category, error) {
	var cats []models.Category
	q := s.db.WithContext(ctx).Select(categoryColumns).Preload("CreatedBy")
	q = f.search(q, "categories.name", "categories.description")
	q = f.since(q, "categories.created_at")
	err := q.Order("categories.created_at DESC, categories.id DESC").Limit(listLimit).Find(&cats).Error
	return cats, err
}

// AdminPosts searches post text and author nickname.
func (s *Store) AdminPosts(ctx context.Context, f AdminFilter) ([]models.Post, error) {
	var posts []models.Post
	q := s.db.WithContext(ctx).
		Select(postColumns).
		Joins("JOIN users ON users.id = posts.author_id").
		Preload("Author").
		Preload("Category")
	q = f.search(q, "posts.text", "users.nickname")
	if f.CategoryID != 0 {
		q = q.Where("posts.category_id = ?", f.CategoryID)
	}
	q = f.since(q, "posts.created_at")
	err := q.Order("posts.created_at DESC, posts.id DESC").Limit(listLimit).Find(&posts).Error
	return posts, err
}

// AdminComments searches comment text and author nickname.
func (s *Store) AdminComments(ctx context.Context, f AdminFilter) ([]models.Comment, error) {
	var comments []models.Comment
	q := s.db.WithContext(ctx).
		Select(commentColumns).
		Joins("JOIN users ON users.id = comments.author_id").
		Preload("Author").
		Preload("Post")
	q = f.search(q, "comments.text", "users.nickname")
	q = f.since(q, "comments.created_at")
	err := q.Order("comments.created_at DESC, comments.id DESC").Limit(listLimit).Find(&comments).Error
	return comments, err
}

// Preview shortens text for listings: the first 50 characters followed by
// "..." when anything was cut.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= 50 {
		return text
	}
	return string(r[:50]) + "..."
}
