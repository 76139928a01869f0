package models

import "time"

// DefaultLabelColor is used when a label is created without a color
const DefaultLabelColor = "#FF0000"

// Label is a node in a project's label tree
type Label struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"size:100;not null"`
	Color      string    `json:"color" gorm:"size:7;not null;default:'#FF0000'"`
	ProjectID  uint      `json:"project_id" gorm:"not null;index"`
	ParentID   *uint     `json:"parent_id" gorm:"index"`
	Attributes JSONMap   `json:"attributes,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Project *Project `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for GORM
func (Label) TableName() string {
	return "labels"
}
