package models

import "time"

// Project groups media, labels and members
type Project struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	OwnerID     uint      `json:"owner_id" gorm:"not null;index"`
	IsActive    bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Owner *User `json:"-" gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT"`
}

// TableName specifies the table name for GORM
func (Project) TableName() string {
	return "projects"
}

// ProjectMembership grants a user a role scoped to one project
type ProjectMembership struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ProjectID uint      `json:"project_id" gorm:"not null;uniqueIndex:idx_membership_project_user"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_membership_project_user;index"`
	Role      Role      `json:"role" gorm:"size:32;not null;default:annotator"`
	CreatedAt time.Time `json:"created_at"`

	Project *Project `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	User    *User    `json:"user,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for GORM
func (ProjectMembership) TableName() string {
	return "project_memberships"
}
