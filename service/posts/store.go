package posts

import (
	"errors"

	"github.com/yatube/yatube-server/cmd/models"
	"github.com/yatube/yatube-server/cmd/utils"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrNotAuthor = errors.New("user is not the author")
)

// Store is the data-access layer for posts, groups, comments and follow
// edges. Handlers never touch gorm directly for these entities.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreatePost persists a new post; the creation timestamp is set by the
// database layer and never changes afterwards.
func (s *Store) CreatePost(post *models.Post) error {
	if err := post.Validate(); err != nil {
		return err
	}
	return s.db.Create(post).Error
}

func (s *Store) PostByID(id uint) (*models.Post, error) {
	var post models.Post
	err := s.db.Preload("Author").Preload("Group").First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost applies new text/group/image to an existing post. Only the
// listed columns are written so the creation timestamp stays untouched.
func (s *Store) UpdatePost(post *models.Post) error {
	if err := post.Validate(); err != nil {
		return err
	}
	return s.db.Model(post).
		Select("text", "group_id", "image_path").
		Updates(map[string]interface{}{
			"text":       post.Text,
			"group_id":   post.GroupID,
			"image_path": post.ImagePath,
		}).Error
}

// DeletePost removes a post and every comment attached to it in one
// transaction.
func (s *Store) DeletePost(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, id).Error
	})
}

// GlobalFeed returns all posts, newest first.
func (s *Store) GlobalFeed(page int) ([]models.Post, utils.Page, error) {
	return s.paginated(s.db.Model(&models.Post{}), page)
}

// GroupFeed returns the posts of one group, newest first.
func (s *Store) GroupFeed(groupID uint, page int) ([]models.Post, utils.Page, error) {
	return s.paginated(s.db.Model(&models.Post{}).Where("group_id = ?", groupID), page)
}

// ProfileFeed returns one author's posts, newest first.
func (s *Store) ProfileFeed(authorID uint, page int) ([]models.Post, utils.Page, error) {
	return s.paginated(s.db.Model(&models.Post{}).Where("author_id = ?", authorID), page)
}

// FollowFeed returns the posts of every author the user follows, newest
// first. An empty follow list means an empty feed.
func (s *Store) FollowFeed(followerID uint, page int) ([]models.Post, utils.Page, error) {
	query := s.db.Model(&models.Post{}).
		Joins("JOIN follows ON follows.followed_id = posts.author_id").
		Where("follows.follower_id = ?", followerID)
	return s.paginated(query, page)
}

func (s *Store) paginated(query *gorm.DB, page int) ([]models.Post, utils.Page, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, utils.Page{}, err
	}

	window := utils.Paginate(total, page)

	var posts []models.Post
	err := query.
		Order("posts.created_at DESC, posts.id DESC").
		Offset(window.Offset()).
		Limit(window.Size).
		Preload("Author").
		Preload("Group").
		Find(&posts).Error
	if err != nil {
		return nil, utils.Page{}, err
	}
	return posts, window, nil
}

func (s *Store) CreateGroup(group *models.Group) error {
	if err := group.Validate(); err != nil {
		return err
	}
	return s.db.Create(group).Error
}

func (s *Store) GroupBySlug(slug string) (*models.Group, error) {
	var group models.Group
	err := s.db.Where("slug = ?", slug).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *Store) GroupByID(id uint) (*models.Group, error) {
	var group models.Group
	err := s.db.First(&group, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// DeleteGroup removes a group. Its posts survive with the group
// reference cleared, inside the same transaction.
func (s *Store) DeleteGroup(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Post{}).Where("group_id = ?", id).Update("group_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, id).Error
	})
}

func (s *Store) AddComment(comment *models.Comment) error {
	if err := comment.Validate(); err != nil {
		return err
	}
	return s.db.Create(comment).Error
}

// CommentsForPost lists a post's comments, newest first.
func (s *Store) CommentsForPost(postID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.Where("post_id = ?", postID).
		Order("created_at DESC, id DESC").
		Preload("Author").
		Find(&comments).Error
	return comments, err
}

func (s *Store) UserByID(id uint) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) UserByUsername(username string) (*models.User, error) {
	var user models.User
	err := s.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Follow records that follower wants followed's posts in their feed.
// Following yourself or an author you already follow is a no-op.
func (s *Store) Follow(followerID, followedID uint) error {
	if followerID == followedID {
		return nil
	}
	already, err := s.IsFollowing(followerID, followedID)
	if err != nil || already {
		return err
	}
	return s.db.Create(&models.Follow{
		FollowerID: followerID,
		FollowedID: followedID,
	}).Error
}

func (s *Store) Unfollow(followerID, followedID uint) error {
	return s.db.Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&models.Follow{}).Error
}

func (s *Store) IsFollowing(followerID, followedID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error
	return count > 0, err
}
