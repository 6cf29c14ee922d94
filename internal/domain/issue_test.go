package domain

import (
	"errors"
	"testing"
)

func ptr(s string) *string { return &s }

func TestValidateHierarchy(t *testing.T) {
	story := &Issue{ID: "p", ProjectID: "proj", Type: IssueTypeStory}
	subtaskParent := &Issue{ID: "p", ProjectID: "proj", Type: IssueTypeSubtask, ParentIssueID: ptr("x")}
	elsewhere := &Issue{ID: "p", ProjectID: "other", Type: IssueTypeTask}

	tests := []struct {
		name      string
		issue     Issue
		parent    *Issue
		subtasks  int
		wantField string
	}{
		{"plain issue", Issue{ID: "i", ProjectID: "proj", Type: IssueTypeTask}, nil, 3, ""},
		{"valid subtask", Issue{ID: "i", ProjectID: "proj", Type: IssueTypeSubtask, ParentIssueID: ptr("p")}, story, 0, ""},
		{"subtask without parent", Issue{ID: "i", ProjectID: "proj", Type: IssueTypeSubtask}, nil, 0, "parentIssueId"},
		{"parent on non-subtask", Issue{ID: "i", ProjectID: "proj", Type: IssueTypeBug, ParentIssueID: ptr("p")}, story, 0, "type"},
		{"issue with subtasks", Issue{ID: "i", ProjectID: "proj", Type: IssueTypeSubtask, ParentIssueID: ptr("p")}, story, 1, "type"},
		{"own parent", Issue{ID: "p", ProjectID: "proj", Type: IssueTypeSubtask, ParentIssueID: ptr("p")}, story, 0, "parentIssueId"},
		{"missing parent", Issue{ID: "i", ProjectID: "proj", Type: IssueTypeSubtask, ParentIssueID: ptr("p")}, nil, 0, "parentIssueId"},
		{"nested subtask", Issue{ID: "i", ProjectID: "proj", Type: IssueTypeSubtask, ParentIssueID: ptr("p")}, subtaskParent, 0, "parentIssueId"},
		{"other project", Issue{ID: "i", ProjectID: "proj", Type: IssueTypeSubtask, ParentIssueID: ptr("p")}, elsewhere, 0, "parentIssueId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHierarchy(tt.issue, tt.parent, tt.subtasks)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateHierarchy() error = %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.wantField {
				t.Fatalf("ValidateHierarchy() error = %v, want ValidationError on %s", err, tt.wantField)
			}
		})
	}
}

func TestIssuePatchParent(t *testing.T) {
	base := Issue{ID: "i", Type: IssueTypeSubtask, ParentIssueID: ptr("p")}

	if got := (IssuePatch{}).Apply(base); got.ParentIssueID == nil || *got.ParentIssueID != "p" {
		t.Errorf("empty patch changed parent to %v", got.ParentIssueID)
	}
	if got := (IssuePatch{ParentIssueID: ptr("q")}).Apply(base); got.ParentIssueID == nil || *got.ParentIssueID != "q" {
		t.Errorf("parent = %v, want q", got.ParentIssueID)
	}
	if got := (IssuePatch{ParentIssueID: ptr("")}).Apply(base); got.ParentIssueID != nil {
		t.Errorf("empty parent should detach, got %q", *got.ParentIssueID)
	}
}

func TestProjectKeyBase(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"TaskFlow Project", "TP"},
		{"Project", "PRO"},
		{"My App", "MA"},
		{"X", "X01"},
		{"Mobile Web Platform Revamp Phase", "MWPR"},
		{"  billing-v2 service ", "BS"},
		{"Ümlaut café", "MC"},
		{"2024", "01"},
		{"", "01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProjectKeyBase(tt.name); got != tt.want {
				t.Errorf("ProjectKeyBase(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestUniqueProjectKey(t *testing.T) {
	if got := UniqueProjectKey("MA", nil); got != "MA" {
		t.Errorf("free key = %q, want MA", got)
	}
	taken := map[string]bool{"MA": true, "MA1": true, "MA3": true}
	if got := UniqueProjectKey("MA", taken); got != "MA2" {
		t.Errorf("UniqueProjectKey() = %q, want MA2", got)
	}
	if got := IssueKey("MA2", 14); got != "MA2-14" {
		t.Errorf("IssueKey() = %q", got)
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	tests := []struct {
		req      PageRequest
		want     []int
		wantNext bool
	}{
		{PageRequest{Number: 1, Size: 2}, []int{1, 2}, true},
		{PageRequest{Number: 3, Size: 2}, []int{5}, false},
		{PageRequest{Number: 4, Size: 2}, []int{}, false},
		{PageRequest{Number: 1, Size: 10}, []int{1, 2, 3, 4, 5}, false},
	}
	for _, tt := range tests {
		page := Paginate(items, tt.req)
		if len(page.Items) != len(tt.want) {
			t.Fatalf("Paginate(%+v) = %v, want %v", tt.req, page.Items, tt.want)
		}
		for i := range tt.want {
			if page.Items[i] != tt.want[i] {
				t.Errorf("Paginate(%+v) = %v, want %v", tt.req, page.Items, tt.want)
				break
			}
		}
		if page.Total != 5 || page.HasNext() != tt.wantNext {
			t.Errorf("Paginate(%+v): total %d next %v", tt.req, page.Total, page.HasNext())
		}
	}
}
