package database

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/datasets/internal/core"
)

func TestFilterPredicate(t *testing.T) {
	t.Run("empty filter matches everything", func(t *testing.T) {
		sql, args, err := filterPredicate(core.Filter{}).ToSql()
		require.NoError(t, err)
		assert.Equal(t, "(1=1)", sql)
		assert.Empty(t, args)
	})

	t.Run("categories match either language", func(t *testing.T) {
		cats := []string{"Health", "الصحة"}
		sql, args, err := filterPredicate(core.Filter{Categories: cats}).ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "metadata->>'category_en' = ANY(?) OR metadata->>'category_ar' = ANY(?)")
		assert.Equal(t, []any{cats, cats}, args)
	})

	t.Run("search covers text fields and tags", func(t *testing.T) {
		sql, args, err := filterPredicate(core.Filter{Search: "roads"}).ToSql()
		require.NoError(t, err)
		for _, col := range searchColumns {
			assert.Contains(t, sql, col+" ILIKE ?")
		}
		assert.Contains(t, sql, "jsonb_array_elements_text")
		require.Len(t, args, len(searchColumns)+1)
		for _, a := range args {
			assert.Equal(t, "%roads%", a)
		}
	})

	t.Run("like wildcards in search are literal", func(t *testing.T) {
		_, args, err := filterPredicate(core.Filter{Search: `50%_off\`}).ToSql()
		require.NoError(t, err)
		assert.Equal(t, `%50\%\_off\\%`, args[0])
	})

	t.Run("search and categories combine with AND", func(t *testing.T) {
		sql, _, err := psql.Select("COUNT(*)").From("datasets").
			Where(filterPredicate(core.Filter{Search: "x", Categories: []string{"A"}})).
			ToSql()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sql, "SELECT COUNT(*) FROM datasets WHERE ("), sql)
		assert.Contains(t, sql, ") AND (")
		assert.Contains(t, sql, "$1")
		assert.NotContains(t, sql, "?")
	})
}

func TestBuildUpdate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("append history with revision check", func(t *testing.T) {
		status := core.StatusUnderReview
		md := core.Metadata{TitleEN: "Roads"}
		b, err := buildUpdate("ds1", core.Update{
			ExpectRevision: 4,
			IfStatus:       []core.Status{core.StatusMetadataGenerated, core.StatusUnderReview},
			Status:         &status,
			Metadata:       &md,
			PushHistory:    &core.HistoryEntry{Metadata: md, CreatedBy: "editor", CreatedAt: now},
		}, now)
		require.NoError(t, err)

		sql, args, err := b.ToSql()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sql, "UPDATE datasets SET revision = revision + 1"), sql)
		assert.Contains(t, sql, "metadata_history = metadata_history || jsonb_build_array(")
		assert.Contains(t, sql, "WHERE id = ")
		assert.Contains(t, sql, "revision = ")
		assert.Contains(t, sql, "status IN (")
		assert.Contains(t, sql, "RETURNING id, filename")
		assert.Contains(t, args, "ds1")
		assert.Contains(t, args, int64(4))
		assert.Contains(t, args, "under_review")
		assert.Contains(t, args, "metadata_generated")
	})

	t.Run("amend last comment requires history", func(t *testing.T) {
		comment := "fix tags"
		b, err := buildUpdate("ds1", core.Update{AmendLastComment: &comment}, now)
		require.NoError(t, err)

		sql, args, err := b.ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "jsonb_set(metadata_history, ARRAY[(jsonb_array_length(metadata_history) - 1)::text, 'comment']")
		assert.Contains(t, sql, "jsonb_array_length(metadata_history) > 0")
		assert.Contains(t, args, "fix tags")
	})

	t.Run("version push replaces file fields", func(t *testing.T) {
		next := 3
		b, err := buildUpdate("ds1", core.Update{
			File:           &core.FileReplacement{Profile: core.Profile{Filename: "new.csv", RowCount: 9}, UploadDate: now},
			CurrentVersion: &next,
			PushVersion:    &core.VersionHistoryEntry{VersionNumber: 2},
		}, now)
		require.NoError(t, err)

		sql, args, err := b.ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "versions = versions || jsonb_build_array(")
		assert.Contains(t, sql, "current_version = ")
		assert.Contains(t, sql, "filename = ")
		assert.Contains(t, sql, "columns = $")
		assert.Contains(t, args, "new.csv")
		assert.Contains(t, args, 3)
		assert.Contains(t, args, "[]", "nil columns are stored as an empty array")
	})

	t.Run("append and amend together is rejected", func(t *testing.T) {
		c := "x"
		_, err := buildUpdate("ds1", core.Update{PushHistory: &core.HistoryEntry{}, AmendLastComment: &c}, now)
		assert.Error(t, err)
	})
}
