package models

import (
	"gorm.io/gorm"
)


type User struct {
    gorm.Model
    Username     string `gorm:"column:username;size:150;not null;uniqueIndex" json:"username" validate:"required,max=150"`
    Email        string `gorm:"column:email;size:255;not null" json:"email" validate:"required,email"`
    PasswordHash string `gorm:"column:password_hash;size:255;not null" json:"-"`

    Posts    []Post    `gorm:"foreignKey:AuthorID" json:"posts,omitempty"`
    Comments []Comment `gorm:"foreignKey:AuthorID" json:"comments,omitempty"`
}

func (u *User) Validate() error {
    return validate.Struct(u)
}
