package database

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/JonMunkholm/datasets/internal/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchColumns are matched case-insensitively by Filter.Search.
var searchColumns = []string{
	"metadata->>'title_en'",
	"metadata->>'title_ar'",
	"metadata->>'description_en'",
	"metadata->>'description_ar'",
	"original_filename",
	"file_type",
}

// filterPredicate translates a core.Filter into a WHERE clause. An empty
// filter matches every row.
func filterPredicate(f core.Filter) sq.And {
	where := sq.And{}

	if len(f.Categories) > 0 {
		cats := append([]string(nil), f.Categories...)
		where = append(where, sq.Or{
			sq.Expr("metadata->>'category_en' = ANY(?)", cats),
			sq.Expr("metadata->>'category_ar' = ANY(?)", cats),
		})
	}

	if f.Search != "" {
		pattern := "%" + likeEscaper.Replace(f.Search) + "%"
		match := sq.Or{}
		for _, col := range searchColumns {
			match = append(match, sq.ILike{col: pattern})
		}
		match = append(match, sq.Expr(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(metadata->'tags', '[]'::jsonb)) AS tag WHERE tag ILIKE ?)",
			pattern,
		))
		where = append(where, match)
	}

	return where
}
