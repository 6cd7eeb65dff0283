package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/datasets/internal/core"
)

// Postgres SQLSTATE codes.
const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

var datasetColumns = []string{
	"id",
	"filename",
	"original_filename",
	"file_size",
	"file_type",
	"file_path",
	"upload_date",
	"row_count",
	"columns",
	"status",
	"metadata",
	"metadata_history",
	"versions",
	"current_version",
	"revision",
	"created_at",
	"updated_at",
}

// DatasetStore implements core.Store on a datasets table with JSONB
// columns for columns, metadata, history and versions. Every mutation is
// a single conditional UPDATE.
type DatasetStore struct {
	db  DBTX
	now func() time.Time
}

var _ core.Store = (*DatasetStore)(nil)

func NewDatasetStore(db DBTX) *DatasetStore {
	return &DatasetStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *DatasetStore) Insert(ctx context.Context, d core.Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	cols, err := encodeJSON(nonNil(d.Columns))
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	meta, err := encodeJSON(d.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	history, err := encodeJSON(nonNil(d.MetadataHistory))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	versions, err := encodeJSON(nonNil(d.Versions))
	if err != nil {
		return fmt.Errorf("encode versions: %w", err)
	}

	now := s.now()
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	revision := d.Revision
	if revision == 0 {
		revision = 1
	}

	query, args, err := psql.Insert("datasets").
		Columns(datasetColumns...).
		Values(
			d.ID, d.Filename, d.OriginalFilename, d.FileSize, d.FileType, d.FilePath,
			d.UploadDate.UTC(), d.RowCount,
			sq.Expr("?::jsonb", cols),
			string(d.Status),
			sq.Expr("?::jsonb", meta),
			sq.Expr("?::jsonb", history),
			sq.Expr("?::jsonb", versions),
			d.CurrentVersion, revision, createdAt.UTC(), now,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if pgCode(err) == uniqueViolation {
			return fmt.Errorf("insert dataset %s: %w", d.ID, core.ErrConflict)
		}
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

func (s *DatasetStore) FindByID(ctx context.Context, id string) (core.Dataset, error) {
	query, args, err := psql.Select(datasetColumns...).
		From("datasets").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return core.Dataset{}, fmt.Errorf("build select: %w", err)
	}

	d, err := scanDataset(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Dataset{}, core.ErrNotFound
	}
	return d, err
}

func (s *DatasetStore) Update(ctx context.Context, id string, u core.Update) (core.Dataset, error) {
	b, err := buildUpdate(id, u, s.now())
	if err != nil {
		return core.Dataset{}, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return core.Dataset{}, fmt.Errorf("build update: %w", err)
	}

	d, err := scanDataset(s.db.QueryRow(ctx, query, args...))
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either the row is gone or a precondition failed.
		if _, findErr := s.FindByID(ctx, id); findErr != nil {
			return core.Dataset{}, findErr
		}
		return core.Dataset{}, fmt.Errorf("update dataset %s: %w", id, core.ErrConflict)
	case pgCode(err) == checkViolation:
		return core.Dataset{}, fmt.Errorf("update dataset %s violates %s: %w", id, constraintName(err), err)
	default:
		return core.Dataset{}, fmt.Errorf("update dataset %s: %w", id, err)
	}
}

// buildUpdate renders u as one UPDATE ... RETURNING statement whose WHERE
// clause carries the revision and status preconditions.
func buildUpdate(id string, u core.Update, now time.Time) (sq.UpdateBuilder, error) {
	b := psql.Update("datasets").
		Set("revision", sq.Expr("revision + 1")).
		Set("updated_at", now).
		Where(sq.Eq{"id": id})

	if u.ExpectRevision != 0 {
		b = b.Where(sq.Eq{"revision": u.ExpectRevision})
	}
	if len(u.IfStatus) > 0 {
		statuses := make([]string, len(u.IfStatus))
		for i, st := range u.IfStatus {
			statuses[i] = string(st)
		}
		b = b.Where(sq.Eq{"status": statuses})
	}

	if u.Status != nil {
		b = b.Set("status", string(*u.Status))
	}
	if u.Metadata != nil {
		raw, err := encodeJSON(*u.Metadata)
		if err != nil {
			return b, fmt.Errorf("encode metadata: %w", err)
		}
		b = b.Set("metadata", sq.Expr("?::jsonb", raw))
	}
	if u.File != nil {
		p := u.File.Profile
		cols, err := encodeJSON(nonNil(p.Columns))
		if err != nil {
			return b, fmt.Errorf("encode columns: %w", err)
		}
		b = b.SetMap(map[string]any{
			"filename":          p.Filename,
			"original_filename": p.OriginalFilename,
			"file_size":         p.FileSize,
			"file_type":         p.FileType,
			"file_path":         p.FilePath,
			"row_count":         p.RowCount,
			"columns":           sq.Expr("?::jsonb", cols),
			"upload_date":       u.File.UploadDate.UTC(),
		})
	}
	if u.CurrentVersion != nil {
		b = b.Set("current_version", *u.CurrentVersion)
	}

	switch {
	case u.PushHistory != nil && u.AmendLastComment != nil:
		return b, errors.New("update cannot both append and amend history")
	case u.PushHistory != nil:
		raw, err := encodeJSON(*u.PushHistory)
		if err != nil {
			return b, fmt.Errorf("encode history entry: %w", err)
		}
		b = b.Set("metadata_history", sq.Expr("metadata_history || jsonb_build_array(?::jsonb)", raw))
	case u.AmendLastComment != nil:
		b = b.Set("metadata_history", sq.Expr(
			"jsonb_set(metadata_history, ARRAY[(jsonb_array_length(metadata_history) - 1)::text, 'comment'], to_jsonb(?::text))",
			*u.AmendLastComment,
		)).Where("jsonb_array_length(metadata_history) > 0")
	}

	if u.PushVersion != nil {
		raw, err := encodeJSON(*u.PushVersion)
		if err != nil {
			return b, fmt.Errorf("encode version entry: %w", err)
		}
		b = b.Set("versions", sq.Expr("versions || jsonb_build_array(?::jsonb)", raw))
	}

	return b.Suffix("RETURNING " + strings.Join(datasetColumns, ", ")), nil
}

func (s *DatasetStore) DeleteByID(ctx context.Context, id string) error {
	query, args, err := psql.Delete("datasets").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete dataset %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *DatasetStore) Count(ctx context.Context, f core.Filter) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("datasets").
		Where(filterPredicate(f)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count datasets: %w", err)
	}
	return n, nil
}

func (s *DatasetStore) Find(ctx context.Context, f core.Filter, p core.Page) ([]core.Dataset, error) {
	b := psql.Select(datasetColumns...).
		From("datasets").
		Where(filterPredicate(f)).
		OrderBy("upload_date DESC", "id")
	if p.Skip > 0 {
		b = b.Offset(uint64(p.Skip))
	}
	if p.Limit > 0 {
		b = b.Limit(uint64(p.Limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find datasets: %w", err)
	}
	defer rows.Close()

	out := []core.Dataset{}
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return out, nil
}

func (s *DatasetStore) DistinctCategories(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("DISTINCT metadata->>'category_en' AS category").
		From("datasets").
		Where("COALESCE(metadata->>'category_en', '') <> ''").
		OrderBy("category").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build categories: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	cats, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	return cats, nil
}

func scanDataset(row pgx.Row) (core.Dataset, error) {
	var (
		d                             core.Dataset
		status                        string
		cols, meta, history, versions []byte
	)
	err := row.Scan(
		&d.ID, &d.Filename, &d.OriginalFilename, &d.FileSize, &d.FileType, &d.FilePath,
		&d.UploadDate, &d.RowCount, &cols, &status, &meta, &history, &versions,
		&d.CurrentVersion, &d.Revision, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Dataset{}, err
		}
		return core.Dataset{}, fmt.Errorf("scan dataset: %w", err)
	}
	d.Status = core.Status(status)

	for _, f := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"columns", cols, &d.Columns},
		{"metadata", meta, &d.Metadata},
		{"metadata_history", history, &d.MetadataHistory},
		{"versions", versions, &d.Versions},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return core.Dataset{}, fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	return d, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
