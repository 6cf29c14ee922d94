package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ProjectCategory classifies a project.
type ProjectCategory string

const (
	ProjectCategorySoftware  ProjectCategory = "Software"
	ProjectCategoryMarketing ProjectCategory = "Marketing"
	ProjectCategoryBusiness  ProjectCategory = "Business"
)

// Project represents a board that contains issues. Key prefixes the keys of
// its issues and never changes after creation.
type Project struct {
	ID          string          `json:"id" db:"id"`
	Key         string          `json:"key" db:"key"`
	Name        string          `json:"name" db:"name"`
	URL         *string         `json:"url,omitempty" db:"url"`
	Description *string         `json:"description,omitempty" db:"description"`
	Category    ProjectCategory `json:"category" db:"category"`
	IsPublic    bool            `json:"isPublic" db:"is_public"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// ProjectPatch carries optional field updates for a project.
type ProjectPatch struct {
	Name        *string
	URL         *string
	Description *string
	Category    *ProjectCategory
	IsPublic    *bool
}

// Apply returns a copy of p with the patch applied.
func (pp ProjectPatch) Apply(p Project) Project {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.URL != nil {
		p.URL = pp.URL
	}
	if pp.Description != nil {
		p.Description = pp.Description
	}
	if pp.Category != nil {
		p.Category = *pp.Category
	}
	if pp.IsPublic != nil {
		p.IsPublic = *pp.IsPublic
	}
	p.UpdatedAt = time.Now()
	return p
}

// ProjectDetail is a project together with its board and roster.
type ProjectDetail struct {
	Project
	Issues          []Issue  `json:"issues"`
	Users           []Member `json:"users"`
	CurrentUserRole *Role    `json:"currentUserRole,omitempty"`
}

// ProjectScope restricts project listings to what a caller may read.
// The zero value matches public projects only.
type ProjectScope struct {
	All    bool
	UserID string
}

const maxProjectKeyLen = 10

// ProjectKeyBase derives a key from a project name: the first three letters
// of a single word, or the initials of up to four words. Only ASCII letters
// count. Keys shorter than two letters get "01" appended.
func ProjectKeyBase(name string) string {
	words := strings.FieldsFunc(strings.Map(func(r rune) rune {
		switch {
		case r <= unicode.MaxASCII && unicode.IsLetter(r):
			return unicode.ToUpper(r)
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, name), unicode.IsSpace)

	var key string
	if len(words) == 1 {
		key = words[0][:min(3, len(words[0]))]
	} else {
		for _, w := range words[:min(4, len(words))] {
			key += w[:1]
		}
	}
	if len(key) < 2 {
		key += "01"
	}
	return key[:min(maxProjectKeyLen, len(key))]
}

// UniqueProjectKey returns base, or base followed by the smallest positive
// counter that taken does not contain.
func UniqueProjectKey(base string, taken map[string]bool) string {
	key := base
	for n := 1; taken[key]; n++ {
		key = base + strconv.Itoa(n)
	}
	return key
}
