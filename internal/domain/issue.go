package domain

import (
	"fmt"
	"time"
)

// IssueType classifies the work an issue represents.
type IssueType string

const (
	IssueTypeStory IssueType = "Story"
	IssueTypeTask  IssueType = "Task"
	IssueTypeBug   IssueType = "Bug"

	// IssueTypeSubtask issues always hang off a parent issue of the same
	// project. Subtasks do not nest.
	IssueTypeSubtask IssueType = "Subtask"
)

// IssueStatus is the board column an issue sits in.
type IssueStatus string

const (
	IssueStatusBacklog    IssueStatus = "Backlog"
	IssueStatusSelected   IssueStatus = "Selected"
	IssueStatusInProgress IssueStatus = "InProgress"
	IssueStatusDone       IssueStatus = "Done"
)

// IssuePriority ranks urgency on a five-level scale.
type IssuePriority string

const (
	IssuePriorityLowest  IssuePriority = "Lowest"
	IssuePriorityLow     IssuePriority = "Low"
	IssuePriorityMedium  IssuePriority = "Medium"
	IssuePriorityHigh    IssuePriority = "High"
	IssuePriorityHighest IssuePriority = "Highest"
)

// Issue represents a card on a project board.
// ListPosition is derived from Rank when read and is 1-based within the
// (project, status) column. Key is assigned on create as PROJECTKEY-N.
type Issue struct {
	ID            string         `json:"id" db:"id"`
	Key           string         `json:"key" db:"key"`
	ProjectID     string         `json:"projectId" db:"project_id"`
	ParentIssueID *string        `json:"parentIssueId,omitempty" db:"parent_issue_id"`
	Title         string         `json:"title" db:"title"`
	Type          IssueType      `json:"type" db:"type"`
	Status        IssueStatus    `json:"status" db:"status"`
	Priority      IssuePriority  `json:"priority" db:"priority"`
	ListPosition  int            `json:"listPosition" db:"list_position"`
	Rank          string         `json:"-" db:"rank"`
	Description   *string        `json:"description,omitempty" db:"description"`
	Estimate      *int           `json:"estimate,omitempty" db:"estimate"`
	TimeSpent     *int           `json:"timeSpent,omitempty" db:"time_spent"`
	TimeRemaining *int           `json:"timeRemaining,omitempty" db:"time_remaining"`
	ReporterID    string         `json:"reporterId" db:"reporter_id"`
	UserIDs       []string       `json:"userIds" db:"-"`
	Subtasks      []IssueSummary `json:"subtasks,omitempty" db:"-"`
	Comments      []Comment      `json:"comments,omitempty" db:"-"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt" db:"updated_at"`
}

// IssueSummary is the short form of a subtask shown on its parent.
type IssueSummary struct {
	ID       string        `json:"id" db:"id"`
	Key      string        `json:"key" db:"key"`
	Title    string        `json:"title" db:"title"`
	Type     IssueType     `json:"type" db:"type"`
	Status   IssueStatus   `json:"status" db:"status"`
	Priority IssuePriority `json:"priority" db:"priority"`
}

// IssueKey formats the key of the n-th issue created in a project.
func IssueKey(projectKey string, n int) string {
	return fmt.Sprintf("%s-%d", projectKey, n)
}

// IssuePatch carries optional field updates for an issue. A non-nil UserIDs
// replaces the assignee set.
type IssuePatch struct {
	Title         *string
	Type          *IssueType
	Priority      *IssuePriority
	Description   *string
	Estimate      *int
	TimeSpent     *int
	TimeRemaining *int
	ReporterID    *string
	UserIDs       []string
	// ParentIssueID sets the parent; an empty string detaches the issue.
	ParentIssueID *string
}

// Apply returns a copy of i with the patch applied. Status and ordering are
// changed only through a move.
func (ip IssuePatch) Apply(i Issue) Issue {
	if ip.Title != nil {
		i.Title = *ip.Title
	}
	if ip.Type != nil {
		i.Type = *ip.Type
	}
	if ip.Priority != nil {
		i.Priority = *ip.Priority
	}
	if ip.Description != nil {
		i.Description = ip.Description
	}
	if ip.Estimate != nil {
		i.Estimate = ip.Estimate
	}
	if ip.TimeSpent != nil {
		i.TimeSpent = ip.TimeSpent
	}
	if ip.TimeRemaining != nil {
		i.TimeRemaining = ip.TimeRemaining
	}
	if ip.ReporterID != nil {
		i.ReporterID = *ip.ReporterID
	}
	if ip.UserIDs != nil {
		i.UserIDs = ip.UserIDs
	}
	if ip.ParentIssueID != nil {
		if *ip.ParentIssueID == "" {
			i.ParentIssueID = nil
		} else {
			parent := *ip.ParentIssueID
			i.ParentIssueID = &parent
		}
	}
	i.UpdatedAt = time.Now()
	return i
}

// IssueMove places an issue at a 1-based position of a status column.
type IssueMove struct {
	Status       IssueStatus
	ListPosition int
}

// IssueFilter narrows issue listings. Term matches title or description.
type IssueFilter struct {
	Scope     ProjectScope
	ProjectID string
	Term      string
}

// ValidateHierarchy checks the subtask rules for issue. parent is the issue
// named by issue.ParentIssueID, nil when unset or missing. subtasks counts
// the issues that currently name issue as their parent.
func ValidateHierarchy(issue Issue, parent *Issue, subtasks int) error {
	subtask := issue.Type == IssueTypeSubtask
	switch {
	case issue.ParentIssueID == nil && subtask:
		return &ValidationError{Field: "parentIssueId", Message: "is required for subtasks"}
	case issue.ParentIssueID == nil:
		return nil
	case !subtask:
		return &ValidationError{Field: "type", Message: "must be Subtask when parentIssueId is set"}
	case subtasks > 0:
		return &ValidationError{Field: "type", Message: "an issue with subtasks cannot become a subtask"}
	case *issue.ParentIssueID == issue.ID:
		return &ValidationError{Field: "parentIssueId", Message: "must not be the issue itself"}
	case parent == nil:
		return &ValidationError{Field: "parentIssueId", Message: "does not exist"}
	case parent.Type == IssueTypeSubtask:
		return &ValidationError{Field: "parentIssueId", Message: "must not be a subtask"}
	case parent.ProjectID != issue.ProjectID:
		return &ValidationError{Field: "parentIssueId", Message: "must belong to the same project"}
	}
	return nil
}
