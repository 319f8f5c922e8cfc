package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

// CommentMaxLength caps comment text, matching the column size.
const CommentMaxLength = 300


type Group struct {
    gorm.Model
    Title       string `gorm:"column:title;size:200;not null" json:"title" validate:"required,max=200"`
    Description string `gorm:"column:description;type:text" json:"description,omitempty"`
    Slug        string `gorm:"column:slug;size:100;not null;uniqueIndex" json:"slug" validate:"required,max=100"`

    Posts []Post `gorm:"foreignKey:GroupID" json:"posts,omitempty"`
}

func (g *Group) Validate() error {
    return validate.Struct(g)
}


// Post is an authored text entry. GroupID is optional: when the group is
// removed the reference is cleared, never the post.
type Post struct {
    gorm.Model
    Text      string `gorm:"column:text;type:text;not null" json:"text" validate:"required"`
    AuthorID  uint   `gorm:"column:author_id;not null;index" json:"author_id"`
    GroupID   *uint  `gorm:"column:group_id;index" json:"group_id,omitempty"`
    ImagePath string `gorm:"column:image_path;size:255" json:"image,omitempty"`

    Author   *User     `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
    Group    *Group    `gorm:"foreignKey:GroupID" json:"group,omitempty"`
    Comments []Comment `gorm:"foreignKey:PostID" json:"comments,omitempty"`
}

func (p *Post) Validate() error {
    return validate.Struct(p)
}

// IsAuthor reports whether userID owns the post. Only the author may
// edit or delete it.
func (p *Post) IsAuthor(userID uint) bool {
    return p.AuthorID == userID
}


type Comment struct {
    gorm.Model
    PostID   uint   `gorm:"column:post_id;not null;index" json:"post_id"`
    AuthorID uint   `gorm:"column:author_id;not null;index" json:"author_id"`
    Text     string `gorm:"column:text;size:300;not null" json:"text" validate:"required,max=300"`

    Author *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

func (c *Comment) Validate() error {
    return validate.Struct(c)
}


// Follow is a directed edge: Follower's personalized feed includes
// Followed's posts. The pair is unique so a feed never repeats a post.
// No soft delete: unfollow removes the row so the pair can be re-created.
type Follow struct {
    ID         uint      `gorm:"primaryKey" json:"id"`
    FollowerID uint      `gorm:"column:follower_id;not null;index;uniqueIndex:idx_follow_pair" json:"follower_id"`
    FollowedID uint      `gorm:"column:followed_id;not null;uniqueIndex:idx_follow_pair" json:"followed_id"`
    CreatedAt  time.Time `json:"created_at"`

    Follower *User `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
    Followed *User `gorm:"foreignKey:FollowedID" json:"followed,omitempty"`
}
