package domain

import "time"

// Author is the snapshot of the commenting session stored with each comment.
// It is denormalized on purpose: a comment keeps the name and avatar its
// author had at the time it was written.
type Author struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// Comment is a remark attached to a public task.
type Comment struct {
	ID      string    `json:"id"`
	Comment string    `json:"comment"`
	Created time.Time `json:"created"`
	TaskID  string    `json:"taskId"`
	User    Author    `json:"user"`
}
