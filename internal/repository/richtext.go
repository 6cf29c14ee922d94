package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// RichTextRepository scans stored rich text for blob references.
type RichTextRepository struct {
	db *sqlx.DB
}

func NewRichTextRepository(db *sqlx.DB) *RichTextRepository {
	return &RichTextRepository{db: db}
}

// Containing returns every issue description and comment body that contains
// marker.
func (r *RichTextRepository) Containing(ctx context.Context, marker string) ([]string, error) {
	pattern := "%" + escapeLike(marker) + "%"
	texts := []string{}
	err := r.db.SelectContext(ctx, &texts,
		`SELECT description FROM issues WHERE description LIKE $1
		 UNION ALL
		 SELECT body FROM comments WHERE body LIKE $1`, pattern)
	if err != nil {
		return nil, mapError("scan rich text", err)
	}
	return texts, nil
}
