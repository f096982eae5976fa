package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yuhuotech/pixelhub/internal/metrics"
)

// ImageRecord is one stored image. BackendKind records the backend used at
// write time, not the currently configured one, so switching the active
// backend never breaks retrieval of older uploads.
type ImageRecord struct {
	ID          string     `json:"id"`
	BackendKind string     `json:"storageType"`
	ObjectKey   string     `json:"key"`
	PublicPath  string     `json:"publicPath"`
	URL         string     `json:"url"`
	Filename    string     `json:"filename"`
	Size        int64      `json:"size"`
	Width       int        `json:"width,omitempty"`
	Height      int        `json:"height,omitempty"`
	MimeType    string     `json:"mimeType"`
	CreatedAt   time.Time  `json:"createdAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

const imageColumns = `id, backend_kind, object_key, public_path, url, filename,
	size, width, height, mime_type, created_at, deleted_at`

func scanImage(row interface{ Scan(...any) error }) (*ImageRecord, error) {
	var r ImageRecord
	var deletedAt sql.NullTime
	err := row.Scan(&r.ID, &r.BackendKind, &r.ObjectKey, &r.PublicPath, &r.URL,
		&r.Filename, &r.Size, &r.Width, &r.Height, &r.MimeType, &r.CreatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		r.DeletedAt = &t
	}
	return &r, nil
}

// CreateImage inserts a new image record. public_path carries a unique
// constraint, so a token collision surfaces here instead of silently
// shadowing an existing image.
func (s *Store) CreateImage(ctx context.Context, r *ImageRecord) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("create_image", time.Since(start)) }()

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO images (id, backend_kind, object_key, public_path, url, filename,
			size, width, height, mime_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		r.ID, r.BackendKind, r.ObjectKey, r.PublicPath, r.URL, r.Filename,
		r.Size, r.Width, r.Height, r.MimeType).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// GetImage returns a record by id, or nil when absent.
func (s *Store) GetImage(ctx context.Context, id string) (*ImageRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_image", time.Since(start)) }()

	r, err := scanImage(s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query image: %w", err)
	}
	return r, nil
}

// FindByPublicPath returns the record addressed by a public path, or nil
// when absent. Soft-deleted records are still returned; the caller decides
// whether trash is retrievable.
func (s *Store) FindByPublicPath(ctx context.Context, publicPath string) (*ImageRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("find_by_public_path", time.Since(start)) }()

	r, err := scanImage(s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE public_path = $1`, publicPath))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query image by public path: %w", err)
	}
	return r, nil
}

// SoftDeleteImage marks a record deleted. Applying it twice keeps the
// first deletion timestamp.
func (s *Store) SoftDeleteImage(ctx context.Context, id string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("soft_delete_image", time.Since(start)) }()

	res, err := s.db.ExecContext(ctx,
		`UPDATE images SET deleted_at = COALESCE(deleted_at, NOW()) WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("soft delete image: %w", err)
	}
	return requireRow(res, id)
}

// RestoreImage clears the deletion timestamp. Idempotent.
func (s *Store) RestoreImage(ctx context.Context, id string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("restore_image", time.Since(start)) }()

	res, err := s.db.ExecContext(ctx,
		`UPDATE images SET deleted_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("restore image: %w", err)
	}
	return requireRow(res, id)
}

// HardDeleteImage removes the record. Bytes on the backend are not
// touched; orphaned objects are an accepted gap and get logged upstream.
func (s *Store) HardDeleteImage(ctx context.Context, id string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("hard_delete_image", time.Since(start)) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("image %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// ListFilter narrows an image listing.
type ListFilter struct {
	Trash  bool   // true: only soft-deleted records; false: only live ones
	Query  string // free-text match against filename and public path
	Year   int    // 0 = no date filter
	Month  int    // 0 = whole year
	Cursor string // id of the last record of the previous page
	Limit  int
}

// ListImages returns one page ordered by creation time descending, plus
// the cursor for the next page ("" when exhausted). Keyset pagination on
// (created_at, id) keeps pages stable under concurrent inserts.
func (s *Store) ListImages(ctx context.Context, f ListFilter) ([]*ImageRecord, string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_images", time.Since(start)) }()

	if f.Limit <= 0 {
		f.Limit = 20
	}

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Trash {
		conds = append(conds, "deleted_at IS NOT NULL")
	} else {
		conds = append(conds, "deleted_at IS NULL")
	}

	if f.Query != "" {
		p := arg("%" + f.Query + "%")
		conds = append(conds, fmt.Sprintf("(filename ILIKE %s OR public_path ILIKE %s)", p, p))
	}

	if f.Year > 0 {
		from := time.Date(f.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(1, 0, 0)
		if f.Month >= 1 && f.Month <= 12 {
			from = time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, time.UTC)
			to = from.AddDate(0, 1, 0)
		}
		conds = append(conds, fmt.Sprintf("created_at >= %s AND created_at < %s", arg(from), arg(to)))
	}

	if f.Cursor != "" {
		c := arg(f.Cursor)
		conds = append(conds, fmt.Sprintf(
			`(created_at, id) < (SELECT created_at, id FROM images WHERE id = %s)`, c))
	}

	query := `SELECT ` + imageColumns + ` FROM images WHERE ` + strings.Join(conds, " AND ") +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %s`, arg(f.Limit+1))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var records []*ImageRecord
	for rows.Next() {
		r, err := scanImage(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan image: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("rows error: %w", err)
	}

	nextCursor := ""
	if len(records) > f.Limit {
		records = records[:f.Limit]
		nextCursor = records[len(records)-1].ID
	}
	return records, nextCursor, nil
}

// BackendCount is one row of the stats breakdown.
type BackendCount struct {
	BackendKind string `json:"storageType"`
	Count       int64  `json:"count"`
	Bytes       int64  `json:"bytes"`
}

// Stats aggregates live images per backend kind.
func (s *Store) Stats(ctx context.Context) ([]BackendCount, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("image_stats", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT backend_kind, COUNT(*), COALESCE(SUM(size), 0)
		 FROM images WHERE deleted_at IS NULL
		 GROUP BY backend_kind ORDER BY backend_kind`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []BackendCount
	for rows.Next() {
		var c BackendCount
		if err := rows.Scan(&c.BackendKind, &c.Count, &c.Bytes); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
