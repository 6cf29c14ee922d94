package domain

import "time"

// Comment is a rich-text note attached to an issue.
type Comment struct {
	ID        string       `json:"id" db:"id"`
	Body      string       `json:"body" db:"body"`
	IssueID   string       `json:"issueId" db:"issue_id"`
	UserID    string       `json:"userId" db:"user_id"`
	User      *UserSummary `json:"user,omitempty" db:"-"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time    `json:"updatedAt" db:"updated_at"`
}
