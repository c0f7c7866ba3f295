package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleInvestigator Role = "investigator"
	RoleAnalyst      Role = "analyst"
	RoleSupervisor   Role = "supervisor"
	RoleAdmin        Role = "admin"
)

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleInvestigator, RoleAnalyst, RoleSupervisor, RoleAdmin}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleInvestigator, RoleAnalyst, RoleSupervisor, RoleAdmin:
		return true
	}
	return false
}

// User represents an investigating user.
type User struct {
	ID               uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	Name             string     `json:"name" gorm:"size:255;not null"`
	Email            string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash     string     `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Role             Role       `json:"role" gorm:"type:varchar(20);not null;default:'investigator';index"`
	AvatarURL        string     `json:"avatar_url,omitempty" gorm:"size:1024"`
	ResetTokenHash   string     `json:"-" gorm:"size:64;index"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
