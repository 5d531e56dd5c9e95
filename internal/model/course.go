package model

import (
	"time"

	"github.com/google/uuid"
)

// ContentType enumerates the kinds of course material.
type ContentType string

const (
	ContentTypePDF      ContentType = "pdf"
	ContentTypeDocument ContentType = "document"
	ContentTypeText     ContentType = "text"
	ContentTypeVideo    ContentType = "video"
	ContentTypeLink     ContentType = "link"
)

// Course groups modules.
type Course struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Thumbnail   *string        `json:"thumbnail,omitempty"`
	Modules     []CourseModule `json:"modules"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CourseModule holds content items and assessments.
type CourseModule struct {
	ID            uuid.UUID     `json:"id"`
	CourseID      uuid.UUID     `json:"course_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	OrderNum      int           `json:"order_num"`
	Content       []ContentItem `json:"content"`
	AssessmentIDs []uuid.UUID   `json:"assessment_ids"`
}

// ContentItem is one piece of material. Content is a URL for files, videos and links,
// and the body for text.
type ContentItem struct {
	ID       uuid.UUID   `json:"id"`
	ModuleID uuid.UUID   `json:"module_id"`
	Title    string      `json:"title"`
	Type     ContentType `json:"type"`
	Content  string      `json:"content"`
	OrderNum int         `json:"order_num"`
}

type CreateCourseRequest struct {
	Title       string  `json:"title" binding:"required,min=3,max=255"`
	Description string  `json:"description" binding:"max=4000"`
	Thumbnail   *string `json:"thumbnail" binding:"omitempty,url"`
}

type CreateModuleRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=255"`
	Description string `json:"description" binding:"max=4000"`
	OrderNum    int    `json:"order_num" binding:"min=0"`
}

type CreateContentRequest struct {
	Title    string      `json:"title" binding:"required,min=1,max=255"`
	Type     ContentType `json:"type" binding:"required,oneof=pdf document text video link"`
	Content  string      `json:"content" binding:"required"`
	OrderNum int         `json:"order_num" binding:"min=0"`
}
