package models

import "time"

// Entity is the parent resource (a note) that owns attachments.
type Entity struct {
	ID        string    `json:"entityId"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Attachment is a named binary object belonging to one entity.
type Attachment struct {
	EntityID    string    `json:"entityId"`
	Name        string    `json:"attachmentId"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}
