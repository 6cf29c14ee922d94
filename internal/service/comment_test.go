package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sumire/tracker/internal/domain"
)

func TestCommentService_EditRights(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	author := e.user(t, "author", domain.SystemRoleUser)
	peer := e.user(t, "peer", domain.SystemRoleUser)
	viewer := e.user(t, "viewer", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	e.join(t, p, author, domain.RoleMember)
	e.join(t, p, peer, domain.RoleMember)
	e.join(t, p, viewer, domain.RoleViewer)
	is := e.issue(t, owner, p, "task", "")
	ctx := context.Background()

	if _, err := e.comments.Create(ctx, viewer, is.ID, "hi"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Create(viewer) error = %v, want ErrForbidden", err)
	}
	c, err := e.comments.Create(ctx, author, is.ID, "first")
	if err != nil {
		t.Fatalf("Create(author) error = %v", err)
	}
	if c.UserID != author.ID {
		t.Errorf("UserID = %s, want author", c.UserID)
	}

	if _, _, err := e.comments.Update(ctx, peer, c.ID, "", "hijack"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Update(peer) error = %v, want ErrForbidden", err)
	}
	got, created, err := e.comments.Update(ctx, author, c.ID, "", "edited")
	if err != nil || created || got.Body != "edited" {
		t.Errorf("Update(author) = %+v created=%v err=%v", got, created, err)
	}
	if _, _, err := e.comments.Update(ctx, owner, c.ID, "", "moderated"); err != nil {
		t.Errorf("Update(project admin) error = %v", err)
	}

	if err := e.comments.Delete(ctx, peer, c.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Delete(peer) error = %v, want ErrForbidden", err)
	}
	if err := e.comments.Delete(ctx, author, c.ID); err != nil {
		t.Errorf("Delete(author) error = %v", err)
	}
}

func TestCommentService_UpdateCreatesMissing(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	is := e.issue(t, owner, p, "task", "")
	ctx := context.Background()

	c, created, err := e.comments.Update(ctx, owner, "client-id", is.ID, "hello")
	if err != nil {
		t.Fatalf("Update(missing) error = %v", err)
	}
	if !created || c.ID != "client-id" {
		t.Errorf("Update(missing) = %s created=%v, want client-id created", c.ID, created)
	}

	if _, _, err := e.comments.Update(ctx, owner, "other-id", "", "hello"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update(missing, no issue) error = %v, want ErrNotFound", err)
	}
}

func TestCommentService_ListScope(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	other := e.user(t, "other", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	is := e.issue(t, owner, p, "task", "")
	ctx := context.Background()

	var verr *domain.ValidationError
	if _, err := e.comments.Create(ctx, owner, is.ID, "  "); !errors.As(err, &verr) {
		t.Fatalf("Create(blank) error = %v, want ValidationError", err)
	}
	for _, body := range []string{"one", "two"} {
		if _, err := e.comments.Create(ctx, owner, is.ID, body); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	mine, err := e.comments.List(ctx, owner, "")
	if err != nil {
		t.Fatalf("List(owner) error = %v", err)
	}
	if len(mine) != 2 || mine[0].Body != "two" {
		t.Errorf("List(owner) = %+v, want newest first", mine)
	}

	theirs, err := e.comments.List(ctx, other, "")
	if err != nil {
		t.Fatalf("List(other) error = %v", err)
	}
	if len(theirs) != 0 {
		t.Errorf("List(other) returned %d comments from a private project", len(theirs))
	}
	if _, err := e.comments.List(ctx, other, is.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("List(other, issue) error = %v, want ErrForbidden", err)
	}
}
