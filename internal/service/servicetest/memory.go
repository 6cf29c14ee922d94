// Package servicetest provides an in-memory implementation of the service
// store interfaces for tests.
package servicetest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/rank"
)

// Memory holds every table behind one mutex. Use the accessor methods to get
// the per-resource stores.
type Memory struct {
	mu       sync.Mutex
	users    map[string]domain.User
	projects map[string]domain.Project
	members  map[string]map[string]domain.Member
	issues   map[string]domain.Issue
	comments map[string]domain.Comment
	counters map[string]int
	order    map[string]int
	seq      int
}

func New() *Memory {
	return &Memory{
		users:    map[string]domain.User{},
		projects: map[string]domain.Project{},
		members:  map[string]map[string]domain.Member{},
		issues:   map[string]domain.Issue{},
		comments: map[string]domain.Comment{},
		counters: map[string]int{},
		order:    map[string]int{},
	}
}

func (m *Memory) Users() *Users       { return &Users{m} }
func (m *Memory) Projects() *Projects { return &Projects{m} }
func (m *Memory) Members() *Members   { return &Members{m} }
func (m *Memory) Issues() *Issues     { return &Issues{m} }
func (m *Memory) Comments() *Comments { return &Comments{m} }

// track records insertion order so listings are stable.
func (m *Memory) track(id string) {
	m.seq++
	m.order[id] = m.seq
}

func (m *Memory) newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// readable reports whether scope covers projectID. Callers hold mu.
func (m *Memory) readable(scope domain.ProjectScope, projectID string) bool {
	if scope.All {
		return true
	}
	if p, ok := m.projects[projectID]; ok && p.IsPublic {
		return true
	}
	if scope.UserID == "" {
		return false
	}
	_, ok := m.members[projectID][scope.UserID]
	return ok
}

func (m *Memory) summary(userID string) *domain.UserSummary {
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	s := u.Summary()
	return &s
}

// Users implements service.UserStore.
type Users struct{ m *Memory }

func (s *Users) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s *Users) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, u := range s.m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Users) List(_ context.Context) ([]domain.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]domain.User, 0, len(s.m.users))
	for _, u := range s.m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Users) ListNotInProject(_ context.Context, projectID string) ([]domain.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []domain.User
	for _, u := range s.m.users {
		if _, ok := s.m.members[projectID][u.ID]; !ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Users) Create(_ context.Context, user domain.User) (*domain.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, u := range s.m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, fmt.Errorf("create user: %w", domain.ErrConflict)
		}
	}
	user.ID = s.m.newID(user.ID)
	if user.Role == "" {
		user.Role = domain.SystemRoleUser
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.m.users[user.ID] = user
	s.m.track(user.ID)
	return &user, nil
}

func (s *Users) Update(_ context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if patch.Email != nil {
		for _, other := range s.m.users {
			if other.ID != id && strings.EqualFold(other.Email, *patch.Email) {
				return nil, fmt.Errorf("update user: %w", domain.ErrConflict)
			}
		}
		u.Email = *patch.Email
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Password != nil {
		u.Password = patch.Password
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.AvatarURL != nil {
		u.AvatarURL = patch.AvatarURL
	}
	u.UpdatedAt = time.Now()
	s.m.users[id] = u
	return &u, nil
}

// Delete refuses to remove a user who still reports issues, like the
// foreign key in the database.
func (s *Users) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.users[id]; !ok {
		return domain.ErrNotFound
	}
	var rosters []domain.Member
	for pid, roster := range s.m.members {
		if mb, ok := roster[id]; ok && mb.Role == domain.RoleAdmin {
			rosters = append(rosters, s.m.roster(pid)...)
		}
	}
	if err := domain.CheckUserRemovable(rosters, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	for _, is := range s.m.issues {
		if is.ReporterID == id {
			return fmt.Errorf("delete user: %w", domain.ErrConflict)
		}
	}
	delete(s.m.users, id)
	for pid := range s.m.members {
		delete(s.m.members[pid], id)
	}
	for cid, c := range s.m.comments {
		if c.UserID == id {
			delete(s.m.comments, cid)
		}
	}
	for iid, is := range s.m.issues {
		is.UserIDs = slices.DeleteFunc(is.UserIDs, func(u string) bool { return u == id })
		s.m.issues[iid] = is
	}
	return nil
}

// Projects implements service.ProjectStore.
type Projects struct{ m *Memory }

func (s *Projects) FindByID(_ context.Context, id string) (*domain.Project, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *Projects) List(_ context.Context, scope domain.ProjectScope) ([]domain.Project, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []domain.Project
	for _, p := range s.m.projects {
		if s.m.readable(scope, p.ID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.m.order[out[i].ID] < s.m.order[out[j].ID] })
	return out, nil
}

func (s *Projects) ListPage(ctx context.Context, scope domain.ProjectScope, page domain.PageRequest) (domain.Page[domain.Project], error) {
	all, err := s.List(ctx, scope)
	if err != nil {
		return domain.Page[domain.Project]{}, err
	}
	return domain.Paginate(all, page), nil
}

func (s *Projects) CreateWithAdmin(_ context.Context, p domain.Project, adminID string) (*domain.Project, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.users[adminID]; !ok {
		return nil, fmt.Errorf("create project: %w", domain.ErrInvalidInput)
	}
	p.ID = s.m.newID(p.ID)
	taken := map[string]bool{}
	for _, other := range s.m.projects {
		taken[other.Key] = true
	}
	p.Key = domain.UniqueProjectKey(domain.ProjectKeyBase(p.Name), taken)
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.m.projects[p.ID] = p
	s.m.track(p.ID)
	s.m.members[p.ID] = map[string]domain.Member{
		adminID: {ProjectID: p.ID, UserID: adminID, Role: domain.RoleAdmin, CreatedAt: now, UpdatedAt: now},
	}
	return &p, nil
}

func (s *Projects) Update(_ context.Context, p domain.Project) (*domain.Project, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.projects[p.ID]; !ok {
		return nil, domain.ErrNotFound
	}
	s.m.projects[p.ID] = p
	return &p, nil
}

// Delete cascades to members, issues and comments.
func (s *Projects) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.projects[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.m.projects, id)
	delete(s.m.members, id)
	delete(s.m.counters, id)
	for iid, is := range s.m.issues {
		if is.ProjectID == id {
			s.m.deleteIssue(iid)
		}
	}
	return nil
}

// Members implements service.MemberStore.
type Members struct{ m *Memory }

func (s *Members) Find(_ context.Context, projectID, userID string) (*domain.Member, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	mb, ok := s.m.members[projectID][userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	mb.User = s.m.summary(userID)
	return &mb, nil
}

// List returns admins first, then members, then viewers.
func (s *Members) List(_ context.Context, projectID string) ([]domain.Member, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.roster(projectID), nil
}

func (m *Memory) roster(projectID string) []domain.Member {
	out := make([]domain.Member, 0, len(m.members[projectID]))
	for _, mb := range m.members[projectID] {
		mb.User = m.summary(mb.UserID)
		out = append(out, mb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	domain.SortRoster(out)
	return out
}

func (s *Members) Add(_ context.Context, projectID, userID string, role domain.Role) (*domain.Member, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkRefs(projectID, userID); err != nil {
		return nil, err
	}
	if _, ok := s.m.members[projectID][userID]; ok {
		return nil, fmt.Errorf("add member: %w", domain.ErrConflict)
	}
	return s.m.putMember(projectID, userID, role), nil
}

func (s *Members) Upsert(_ context.Context, projectID, userID string, role domain.Role) (*domain.Member, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkRefs(projectID, userID); err != nil {
		return nil, false, err
	}
	_, exists := s.m.members[projectID][userID]
	if exists {
		if err := domain.CheckAdminRetained(s.m.roster(projectID), userID, role); err != nil {
			return nil, false, err
		}
	}
	return s.m.putMember(projectID, userID, role), !exists, nil
}

func (s *Members) UpdateRole(_ context.Context, projectID, userID string, role domain.Role) (*domain.Member, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.members[projectID][userID]; !ok {
		return nil, domain.ErrNotFound
	}
	if err := domain.CheckAdminRetained(s.m.roster(projectID), userID, role); err != nil {
		return nil, err
	}
	return s.m.putMember(projectID, userID, role), nil
}

func (s *Members) Remove(_ context.Context, projectID, userID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.members[projectID][userID]; !ok {
		return domain.ErrNotFound
	}
	if err := domain.CheckAdminRetained(s.m.roster(projectID), userID, ""); err != nil {
		return err
	}
	delete(s.m.members[projectID], userID)
	return nil
}

func (m *Memory) checkRefs(projectID, userID string) error {
	if _, ok := m.projects[projectID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := m.users[userID]; !ok {
		return fmt.Errorf("member user: %w", domain.ErrInvalidInput)
	}
	return nil
}

func (m *Memory) putMember(projectID, userID string, role domain.Role) *domain.Member {
	now := time.Now()
	mb, ok := m.members[projectID][userID]
	if !ok {
		mb = domain.Member{ProjectID: projectID, UserID: userID, CreatedAt: now}
	}
	mb.Role = role
	mb.UpdatedAt = now
	if m.members[projectID] == nil {
		m.members[projectID] = map[string]domain.Member{}
	}
	m.members[projectID][userID] = mb
	mb.User = m.summary(userID)
	return &mb
}

// Issues implements service.IssueStore. Ranks are real rank keys and
// positions are derived from them on every read.
type Issues struct{ m *Memory }

func (s *Issues) FindByID(_ context.Context, id string) (*domain.Issue, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.issue(id)
}

func (m *Memory) issue(id string) (*domain.Issue, error) {
	is, ok := m.issues[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	is.ListPosition = slices.Index(m.column(is.ProjectID, is.Status), id) + 1
	is.UserIDs = slices.Clone(is.UserIDs)
	is.Subtasks = nil
	for _, sub := range m.issues {
		if sub.ParentIssueID != nil && *sub.ParentIssueID == id {
			is.Subtasks = append(is.Subtasks, domain.IssueSummary{
				ID: sub.ID, Key: sub.Key, Title: sub.Title, Type: sub.Type, Status: sub.Status, Priority: sub.Priority,
			})
		}
	}
	sort.Slice(is.Subtasks, func(i, j int) bool { return m.order[is.Subtasks[i].ID] < m.order[is.Subtasks[j].ID] })
	return &is, nil
}

// checkHierarchy mirrors the repository's parent validation. Callers hold mu.
func (m *Memory) checkHierarchy(is domain.Issue) error {
	var parent *domain.Issue
	if is.ParentIssueID != nil {
		if p, ok := m.issues[*is.ParentIssueID]; ok {
			parent = &p
		}
	}
	subtasks := 0
	for _, other := range m.issues {
		if other.ParentIssueID != nil && *other.ParentIssueID == is.ID {
			subtasks++
		}
	}
	return domain.ValidateHierarchy(is, parent, subtasks)
}

// column returns issue ids of one column in board order.
func (m *Memory) column(projectID string, status domain.IssueStatus) []string {
	var ids []string
	for id, is := range m.issues {
		if is.ProjectID == projectID && is.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.issues[ids[i]], m.issues[ids[j]]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.ID < b.ID
	})
	return ids
}

func (s *Issues) List(_ context.Context, filter domain.IssueFilter) ([]domain.Issue, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	term := strings.ToLower(filter.Term)
	var out []domain.Issue
	for id, is := range s.m.issues {
		if filter.ProjectID != "" && is.ProjectID != filter.ProjectID {
			continue
		}
		if !s.m.readable(filter.Scope, is.ProjectID) {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(is.Title), term) &&
			(is.Description == nil || !strings.Contains(strings.ToLower(*is.Description), term)) {
			continue
		}
		full, _ := s.m.issue(id)
		full.Subtasks = nil
		out = append(out, *full)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].ListPosition < out[j].ListPosition
	})
	return out, nil
}

func (s *Issues) ListPage(ctx context.Context, filter domain.IssueFilter, page domain.PageRequest) (domain.Page[domain.Issue], error) {
	all, err := s.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.Issue]{}, err
	}
	return domain.Paginate(all, page), nil
}

func (s *Issues) Create(_ context.Context, is domain.Issue) (*domain.Issue, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.projects[is.ProjectID]; !ok {
		return nil, fmt.Errorf("create issue: %w", domain.ErrInvalidInput)
	}
	if _, ok := s.m.users[is.ReporterID]; !ok {
		return nil, fmt.Errorf("create issue reporter: %w", domain.ErrInvalidInput)
	}
	is.ID = s.m.newID(is.ID)
	if err := s.m.checkHierarchy(is); err != nil {
		return nil, err
	}
	col := s.m.column(is.ProjectID, is.Status)
	key := rank.First()
	if len(col) > 0 {
		var err error
		if key, err = rank.After(s.m.issues[col[len(col)-1]].Rank); err != nil {
			return nil, err
		}
	}
	s.m.counters[is.ProjectID]++
	is.Key = domain.IssueKey(s.m.projects[is.ProjectID].Key, s.m.counters[is.ProjectID])
	is.Rank = key
	is.UserIDs = dedupe(is.UserIDs)
	is.Subtasks, is.Comments = nil, nil
	now := time.Now()
	is.CreatedAt, is.UpdatedAt = now, now
	s.m.issues[is.ID] = is
	s.m.track(is.ID)
	return s.m.issue(is.ID)
}

func (s *Issues) Update(_ context.Context, is domain.Issue, replaceUsers bool, move *domain.IssueMove) (*domain.Issue, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cur, ok := s.m.issues[is.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	is.ProjectID, is.Status, is.Rank, is.Key = cur.ProjectID, cur.Status, cur.Rank, cur.Key
	is.CreatedAt = cur.CreatedAt
	if err := s.m.checkHierarchy(is); err != nil {
		return nil, err
	}
	if replaceUsers {
		is.UserIDs = dedupe(is.UserIDs)
	} else {
		is.UserIDs = cur.UserIDs
	}
	is.Comments, is.Subtasks = nil, nil
	s.m.issues[is.ID] = is
	if move != nil {
		s.m.move(is.ID, *move)
	}
	return s.m.issue(is.ID)
}

func (s *Issues) Move(_ context.Context, id string, mv domain.IssueMove) (*domain.Issue, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.issues[id]; !ok {
		return nil, domain.ErrNotFound
	}
	s.m.move(id, mv)
	return s.m.issue(id)
}

// move reorders the target column and reassigns evenly spread keys.
func (m *Memory) move(id string, mv domain.IssueMove) {
	is := m.issues[id]
	is.Status = mv.Status
	is.UpdatedAt = time.Now()
	m.issues[id] = is

	col := slices.DeleteFunc(m.column(is.ProjectID, mv.Status), func(x string) bool { return x == id })
	pos := mv.ListPosition
	if pos < 1 || pos > len(col)+1 {
		pos = len(col) + 1
	}
	col = slices.Insert(col, pos-1, id)
	for i, key := range rank.Spread(len(col)) {
		c := m.issues[col[i]]
		c.Rank = key
		m.issues[col[i]] = c
	}
}

func (s *Issues) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.issues[id]; !ok {
		return domain.ErrNotFound
	}
	s.m.deleteIssue(id)
	return nil
}

// deleteIssue cascades to subtasks and comments.
func (m *Memory) deleteIssue(id string) {
	if _, ok := m.issues[id]; !ok {
		return
	}
	delete(m.issues, id)
	for sid, sub := range m.issues {
		if sub.ParentIssueID != nil && *sub.ParentIssueID == id {
			m.deleteIssue(sid)
		}
	}
	for cid, c := range m.comments {
		if c.IssueID == id {
			delete(m.comments, cid)
		}
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Comments implements service.CommentStore.
type Comments struct{ m *Memory }

func (s *Comments) FindByID(_ context.Context, id string) (*domain.Comment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.comments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.User = s.m.summary(c.UserID)
	return &c, nil
}

// ListByIssue returns newest first.
func (s *Comments) ListByIssue(_ context.Context, issueID string) ([]domain.Comment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.selectComments(func(c domain.Comment) bool { return c.IssueID == issueID }), nil
}

func (s *Comments) ListByIssuePage(ctx context.Context, issueID string, page domain.PageRequest) (domain.Page[domain.Comment], error) {
	all, err := s.ListByIssue(ctx, issueID)
	if err != nil {
		return domain.Page[domain.Comment]{}, err
	}
	return domain.Paginate(all, page), nil
}

func (s *Comments) List(_ context.Context, scope domain.ProjectScope) ([]domain.Comment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.selectComments(func(c domain.Comment) bool {
		is, ok := s.m.issues[c.IssueID]
		return ok && s.m.readable(scope, is.ProjectID)
	}), nil
}

func (m *Memory) selectComments(keep func(domain.Comment) bool) []domain.Comment {
	out := []domain.Comment{}
	for _, c := range m.comments {
		if keep(c) {
			c.User = m.summary(c.UserID)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] > m.order[out[j].ID] })
	return out
}

func (s *Comments) Create(_ context.Context, c domain.Comment) (*domain.Comment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.issues[c.IssueID]; !ok {
		return nil, fmt.Errorf("create comment: %w", domain.ErrInvalidInput)
	}
	c.ID = s.m.newID(c.ID)
	if _, ok := s.m.comments[c.ID]; ok {
		return nil, fmt.Errorf("create comment: %w", domain.ErrConflict)
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.m.comments[c.ID] = c
	s.m.track(c.ID)
	c.User = s.m.summary(c.UserID)
	return &c, nil
}

func (s *Comments) UpdateBody(_ context.Context, id, body string) (*domain.Comment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.comments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.Body = body
	c.UpdatedAt = time.Now()
	s.m.comments[id] = c
	c.User = s.m.summary(c.UserID)
	return &c, nil
}

func (s *Comments) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.comments[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.m.comments, id)
	return nil
}

// Containing returns every stored rich text that includes marker.
func (m *Memory) Containing(_ context.Context, marker string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.comments {
		if strings.Contains(c.Body, marker) {
			out = append(out, c.Body)
		}
	}
	for _, is := range m.issues {
		if is.Description != nil && strings.Contains(*is.Description, marker) {
			out = append(out, *is.Description)
		}
	}
	return out, nil
}

// PassthroughImages is an ImageEmbedder that returns html unchanged.
type PassthroughImages struct{}

func (PassthroughImages) Embed(html string) (string, error) { return html, nil }
