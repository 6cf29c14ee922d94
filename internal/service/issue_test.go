package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sumire/tracker/internal/domain"
)

func positions(t *testing.T, e *testEnv, actor *domain.User, p *domain.Project, status domain.IssueStatus) map[string]int {
	t.Helper()
	list, err := e.issues.List(context.Background(), actor, p.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := map[string]int{}
	for _, is := range list {
		if is.Status == status {
			got[is.Title] = is.ListPosition
		}
	}
	return got
}

func assertPositions(t *testing.T, got, want map[string]int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("positions = %v, want %v", got, want)
	}
	for title, pos := range want {
		if got[title] != pos {
			t.Errorf("position of %s = %d, want %d (all: %v)", title, got[title], pos, got)
		}
	}
}

func TestIssueService_CreateAppends(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)

	first := e.issue(t, owner, p, "first", "")
	second := e.issue(t, owner, p, "second", "")

	if first.ListPosition != 1 || second.ListPosition != 2 {
		t.Errorf("positions = %d, %d, want 1, 2", first.ListPosition, second.ListPosition)
	}
	if first.Status != domain.IssueStatusBacklog || first.Type != domain.IssueTypeTask || first.Priority != domain.IssuePriorityMedium {
		t.Errorf("defaults = %s/%s/%s", first.Status, first.Type, first.Priority)
	}
	if first.ReporterID != owner.ID {
		t.Errorf("ReporterID = %s, want creator", first.ReporterID)
	}
}

func TestIssueService_MoveKeepsColumnsContiguous(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	ctx := context.Background()

	e.issue(t, owner, p, "a1", domain.IssueStatusBacklog)
	a2 := e.issue(t, owner, p, "a2", domain.IssueStatusBacklog)
	a3 := e.issue(t, owner, p, "a3", domain.IssueStatusBacklog)
	e.issue(t, owner, p, "b1", domain.IssueStatusSelected)

	moved, err := e.issues.Move(ctx, owner, a2.ID, domain.IssueMove{Status: domain.IssueStatusSelected, ListPosition: 1})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if moved.Status != domain.IssueStatusSelected || moved.ListPosition != 1 {
		t.Errorf("moved = %s#%d, want Selected#1", moved.Status, moved.ListPosition)
	}
	assertPositions(t, positions(t, e, owner, p, domain.IssueStatusBacklog), map[string]int{"a1": 1, "a3": 2})
	assertPositions(t, positions(t, e, owner, p, domain.IssueStatusSelected), map[string]int{"a2": 1, "b1": 2})

	if _, err := e.issues.Move(ctx, owner, a3.ID, domain.IssueMove{Status: domain.IssueStatusBacklog, ListPosition: 1}); err != nil {
		t.Fatalf("Move(within column) error = %v", err)
	}
	assertPositions(t, positions(t, e, owner, p, domain.IssueStatusBacklog), map[string]int{"a3": 1, "a1": 2})

	var verr *domain.ValidationError
	if _, err := e.issues.Move(ctx, owner, a3.ID, domain.IssueMove{Status: domain.IssueStatusDone}); !errors.As(err, &verr) {
		t.Errorf("Move(position 0) error = %v, want ValidationError", err)
	}
}

func TestIssueService_UpdateWithMoveAppends(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)

	a := e.issue(t, owner, p, "a", domain.IssueStatusBacklog)
	e.issue(t, owner, p, "d1", domain.IssueStatusDone)

	title := "renamed"
	got, err := e.issues.Update(context.Background(), owner, a.ID,
		domain.IssuePatch{Title: &title}, &domain.IssueMove{Status: domain.IssueStatusDone})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Title != title || got.Status != domain.IssueStatusDone || got.ListPosition != 2 {
		t.Errorf("Update() = %q %s#%d, want renamed Done#2", got.Title, got.Status, got.ListPosition)
	}
}

func TestIssueService_Assignees(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	dev := e.user(t, "dev", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	is := e.issue(t, owner, p, "task", "")
	ctx := context.Background()

	got, err := e.issues.Update(ctx, owner, is.ID, domain.IssuePatch{UserIDs: []string{dev.ID, owner.ID, dev.ID}}, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(got.UserIDs) != 2 {
		t.Fatalf("UserIDs = %v, want two distinct ids", got.UserIDs)
	}

	estimate := 5
	got, err = e.issues.Update(ctx, owner, is.ID, domain.IssuePatch{Estimate: &estimate}, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(got.UserIDs) != 2 || got.Estimate == nil || *got.Estimate != 5 {
		t.Errorf("Update() = %+v, want assignees kept and estimate 5", got)
	}

	got, err = e.issues.Update(ctx, owner, is.ID, domain.IssuePatch{UserIDs: []string{}}, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(got.UserIDs) != 0 {
		t.Errorf("UserIDs = %v, want cleared", got.UserIDs)
	}
}

func TestIssueService_Permissions(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	viewer := e.user(t, "viewer", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", true)
	e.join(t, p, viewer, domain.RoleViewer)
	is := e.issue(t, owner, p, "task", "")
	ctx := context.Background()

	if _, err := e.issues.Create(ctx, viewer, domain.Issue{ProjectID: p.ID, Title: "x"}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Create(viewer) error = %v, want ErrForbidden", err)
	}
	if err := e.issues.Delete(ctx, viewer, is.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Delete(viewer) error = %v, want ErrForbidden", err)
	}
	if _, err := e.issues.Get(ctx, nil, is.ID); err != nil {
		t.Errorf("Get(anonymous, public) error = %v", err)
	}
	if _, err := e.issues.Create(ctx, nil, domain.Issue{ProjectID: p.ID, Title: "x"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Create(anonymous) error = %v, want ErrUnauthorized", err)
	}
}

func TestIssueService_Search(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	other := e.user(t, "other", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	e.issue(t, owner, p, "Fix login page", "")
	e.issue(t, owner, p, "Write docs", "")
	ctx := context.Background()

	got, err := e.issues.Search(ctx, owner, "LOGIN", "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Fix login page" {
		t.Errorf("Search() = %+v", got)
	}

	got, err = e.issues.Search(ctx, other, "login", "")
	if err != nil {
		t.Fatalf("Search(other) error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Search(other) returned %d private issues", len(got))
	}
}

func TestIssueService_GetIncludesComments(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	is := e.issue(t, owner, p, "task", "")
	ctx := context.Background()

	if _, err := e.comments.Create(ctx, owner, is.ID, "<p>hi</p>"); err != nil {
		t.Fatalf("Create comment: %v", err)
	}
	got, err := e.issues.Get(ctx, owner, is.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Comments) != 1 || got.Comments[0].User == nil || got.Comments[0].User.ID != owner.ID {
		t.Errorf("Comments = %+v", got.Comments)
	}
}

func expectValidation(t *testing.T, err error, field string) {
	t.Helper()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != field {
		t.Fatalf("error = %v, want ValidationError on %s", err, field)
	}
}

func TestIssueService_Keys(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	first := e.project(t, owner, "Payments Gateway", false)
	second := e.project(t, owner, "Public Gateway", false)

	if first.Key != "PG" || second.Key != "PG1" {
		t.Fatalf("project keys = %q, %q, want PG, PG1", first.Key, second.Key)
	}
	a := e.issue(t, owner, first, "a", "")
	b := e.issue(t, owner, first, "b", "")
	c := e.issue(t, owner, second, "c", "")
	if a.Key != "PG-1" || b.Key != "PG-2" || c.Key != "PG1-1" {
		t.Errorf("issue keys = %s, %s, %s", a.Key, b.Key, c.Key)
	}

	title := "renamed"
	updated, err := e.issues.Update(context.Background(), owner, a.ID, domain.IssuePatch{Title: &title}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Key != a.Key {
		t.Errorf("key changed on update: %s", updated.Key)
	}
}

func TestIssueService_Subtasks(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	other := e.project(t, owner, "Elsewhere", false)
	ctx := context.Background()

	parent := e.issue(t, owner, p, "parent", "")
	foreign := e.issue(t, owner, other, "foreign", "")

	child, err := e.issues.Create(ctx, owner, domain.Issue{ProjectID: p.ID, Title: "child", ParentIssueID: &parent.ID})
	if err != nil {
		t.Fatalf("Create(subtask) error = %v", err)
	}
	if child.Type != domain.IssueTypeSubtask {
		t.Errorf("child type = %s, want Subtask", child.Type)
	}

	_, err = e.issues.Create(ctx, owner, domain.Issue{ProjectID: p.ID, Title: "orphan", Type: domain.IssueTypeSubtask})
	expectValidation(t, err, "parentIssueId")
	_, err = e.issues.Create(ctx, owner, domain.Issue{ProjectID: p.ID, Title: "bug", Type: domain.IssueTypeBug, ParentIssueID: &parent.ID})
	expectValidation(t, err, "type")
	_, err = e.issues.Create(ctx, owner, domain.Issue{ProjectID: p.ID, Title: "x", ParentIssueID: &foreign.ID})
	expectValidation(t, err, "parentIssueId")
	missing := "missing"
	_, err = e.issues.Create(ctx, owner, domain.Issue{ProjectID: p.ID, Title: "x", ParentIssueID: &missing})
	expectValidation(t, err, "parentIssueId")

	got, err := e.issues.Get(ctx, owner, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Subtasks) != 1 || got.Subtasks[0].Key != child.Key {
		t.Errorf("subtasks = %+v, want %s", got.Subtasks, child.Key)
	}

	story := domain.IssueTypeStory
	_, err = e.issues.Update(ctx, owner, child.ID, domain.IssuePatch{Type: &story}, nil)
	expectValidation(t, err, "type")

	_, err = e.issues.ConvertToSubtask(ctx, owner, parent.ID, foreign.ID)
	expectValidation(t, err, "type")
	_, err = e.issues.ConvertToSubtask(ctx, owner, child.ID, parent.ID)
	expectValidation(t, err, "type")
	_, err = e.issues.ConvertToIssue(ctx, owner, parent.ID)
	expectValidation(t, err, "type")

	sibling := e.issue(t, owner, p, "sibling", "")
	_, err = e.issues.ConvertToSubtask(ctx, owner, sibling.ID, sibling.ID)
	expectValidation(t, err, "parentIssueId")
	converted, err := e.issues.ConvertToSubtask(ctx, owner, sibling.ID, parent.ID)
	if err != nil {
		t.Fatalf("ConvertToSubtask() error = %v", err)
	}
	if converted.Type != domain.IssueTypeSubtask || *converted.ParentIssueID != parent.ID {
		t.Errorf("converted = %s under %v", converted.Type, converted.ParentIssueID)
	}

	back, err := e.issues.ConvertToIssue(ctx, owner, child.ID)
	if err != nil {
		t.Fatalf("ConvertToIssue() error = %v", err)
	}
	if back.Type != domain.IssueTypeTask || back.ParentIssueID != nil {
		t.Errorf("ConvertToIssue() = %s under %v", back.Type, back.ParentIssueID)
	}

	if err := e.issues.Delete(ctx, owner, parent.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.issues.Get(ctx, owner, sibling.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("subtask survived parent delete: %v", err)
	}
	if _, err := e.issues.Get(ctx, owner, child.ID); err != nil {
		t.Errorf("detached issue was deleted with its old parent: %v", err)
	}
}

func TestIssueService_SearchPage(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	outsider := e.user(t, "outsider", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	for _, title := range []string{"login bug", "login copy", "signup"} {
		e.issue(t, owner, p, title, "")
	}
	ctx := context.Background()

	page, err := e.issues.SearchPage(ctx, owner, "login", p.ID, domain.PageRequest{Number: 1, Size: 1})
	if err != nil {
		t.Fatalf("SearchPage() error = %v", err)
	}
	if len(page.Items) != 1 || page.Total != 2 || !page.HasNext() {
		t.Errorf("page = %d items of %d, next %v", len(page.Items), page.Total, page.HasNext())
	}

	_, err = e.issues.SearchPage(ctx, outsider, "", p.ID, domain.PageRequest{Number: 1, Size: 10})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("outsider SearchPage() error = %v, want ErrForbidden", err)
	}
}
