package models

import (
	"strings"
	"time"
)

// AnnotationStatus is the review state of an annotation
type AnnotationStatus string

const (
	AnnotationStatusPending  AnnotationStatus = "pending"
	AnnotationStatusApproved AnnotationStatus = "approved"
	AnnotationStatusRejected AnnotationStatus = "rejected"
)

// IsTerminal reports whether the status is a completed review decision
func (s AnnotationStatus) IsTerminal() bool {
	return s == AnnotationStatusApproved || s == AnnotationStatusRejected
}

// TerminalStatuses lists the statuses visible to every project reader
func TerminalStatuses() []AnnotationStatus {
	return []AnnotationStatus{AnnotationStatusApproved, AnnotationStatusRejected}
}

// ParseAnnotationStatus parses any known status, used for list filters
func ParseAnnotationStatus(s string) (AnnotationStatus, bool) {
	st := AnnotationStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case AnnotationStatusPending, AnnotationStatusApproved, AnnotationStatusRejected:
		return st, true
	}
	return "", false
}

// ParseReviewStatus parses a review decision. Only terminal statuses are decisions.
func ParseReviewStatus(s string) (AnnotationStatus, bool) {
	st, ok := ParseAnnotationStatus(s)
	if !ok || !st.IsTerminal() {
		return "", false
	}
	return st, true
}

// AnnotationType is the geometric or temporal shape of an annotation
type AnnotationType string

const (
	AnnotationTypeRectangle    AnnotationType = "rectangle"
	AnnotationTypePolygon      AnnotationType = "polygon"
	AnnotationTypePoint        AnnotationType = "point"
	AnnotationTypeLine         AnnotationType = "line"
	AnnotationTypeText         AnnotationType = "text"
	AnnotationTypeAudioSegment AnnotationType = "audio_segment"
)

// Valid reports whether t is a known annotation type
func (t AnnotationType) Valid() bool {
	switch t {
	case AnnotationTypeRectangle, AnnotationTypePolygon, AnnotationTypePoint,
		AnnotationTypeLine, AnnotationTypeText, AnnotationTypeAudioSegment:
		return true
	}
	return false
}

// Annotation is a labeled region or time range on a media file
type Annotation struct {
	ID             uint             `json:"id" gorm:"primaryKey"`
	MediaFileID    uint             `json:"media_file_id" gorm:"not null;index"`
	AnnotatorID    uint             `json:"annotator_id" gorm:"not null;index"`
	LabelID        *uint            `json:"label_id" gorm:"index"`
	AnnotationType AnnotationType   `json:"annotation_type" gorm:"size:32;not null"`
	Payload        JSONMap          `json:"payload" gorm:"type:text"`
	StartTime      *float64         `json:"start_time"`
	EndTime        *float64         `json:"end_time"`
	Confidence     float64          `json:"confidence" gorm:"not null;default:1"`
	Status         AnnotationStatus `json:"status" gorm:"size:16;not null;default:pending;index"`
	ReviewerID     *uint            `json:"reviewer_id"`
	ReviewComment  *string          `json:"review_comment"`
	OutOfRange     bool             `json:"out_of_range" gorm:"not null;default:false"`
	CreatedAt      time.Time        `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time        `json:"updated_at"`

	MediaFile *MediaFile `json:"-" gorm:"foreignKey:MediaFileID;constraint:OnDelete:CASCADE"`
	Label     *Label     `json:"label,omitempty" gorm:"foreignKey:LabelID;constraint:OnDelete:SET NULL"`
}

// TableName returns the table name for the Annotation model
func (Annotation) TableName() string {
	return "annotations"
}

// ExceedsDuration reports whether either end of the time range lies past duration
func (a *Annotation) ExceedsDuration(duration float64) bool {
	if a.StartTime != nil && *a.StartTime > duration {
		return true
	}
	if a.EndTime != nil && *a.EndTime > duration {
		return true
	}
	return false
}
