package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outbox event types emitted alongside bundle mutations.
const (
	eventBundleCreated        = "catalog.bundle.created"
	eventBundleUpdated        = "catalog.bundle.updated"
	eventBundleCoursesChanged = "catalog.bundle.courses_changed"
)

// PostgresCatalogStore is the production Postgres-backed implementation.
type PostgresCatalogStore struct {
	db *pgxpool.Pool
}

func NewPostgresCatalogStore(db *pgxpool.Pool) *PostgresCatalogStore {
	return &PostgresCatalogStore{db: db}
}

// ── Course reads ───────────────────────────────────────────────────────────

const courseColumns = `id, instructor_id, category_id, title, description, status, level_name, level_order_index, created_at`

func scanCourse(row pgx.Row) (Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.InstructorID, &c.CategoryID, &c.Title, &c.Description, &c.Status, &c.Level.Name, &c.Level.OrderIndex, &c.CreatedAt)
	return c, err
}

func (s *PostgresCatalogStore) ListCourses(ctx context.Context, f CourseFilter) ([]Course, error) {
	q := `SELECT ` + courseColumns + ` FROM courses WHERE 1=1`
	args := []any{}
	if f.InstructorID != uuid.Nil {
		args = append(args, f.InstructorID)
		q += fmt.Sprintf(" AND instructor_id=$%d", len(args))
	}
	if f.CategoryID != uuid.Nil {
		args = append(args, f.CategoryID)
		q += fmt.Sprintf(" AND category_id=$%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	q += " ORDER BY level_order_index, created_at"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("courses list: %w", err)
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("courses scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresCatalogStore) GetCoursesByIDs(ctx context.Context, ids []uuid.UUID) ([]Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("courses by ids: %w", err)
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("courses scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ── Bundle reads ───────────────────────────────────────────────────────────

func (s *PostgresCatalogStore) GetBundle(ctx context.Context, id uuid.UUID) (Bundle, error) {
	var b Bundle
	err := s.db.QueryRow(ctx, `
SELECT id, instructor_id, name, description, bundle_type, discount_percent, created_at, updated_at
FROM bundles WHERE id=$1`, id).
		Scan(&b.ID, &b.InstructorID, &b.Name, &b.Description, &b.Type, &b.DiscountPercent, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bundle{}, ErrNotFound
		}
		return Bundle{}, fmt.Errorf("bundle get: %w", err)
	}
	return b, nil
}

func (s *PostgresCatalogStore) ListBundleCourses(ctx context.Context, bundleID uuid.UUID) ([]BundleCourse, error) {
	rows, err := s.db.Query(ctx, `
SELECT bundle_id, course_id, order_index
FROM bundle_courses WHERE bundle_id=$1 ORDER BY order_index`, bundleID)
	if err != nil {
		return nil, fmt.Errorf("bundle courses list: %w", err)
	}
	defer rows.Close()

	var out []BundleCourse
	for rows.Next() {
		var bc BundleCourse
		if err := rows.Scan(&bc.BundleID, &bc.CourseID, &bc.OrderIndex); err != nil {
			return nil, fmt.Errorf("bundle courses scan: %w", err)
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

// ── Bundle writes ──────────────────────────────────────────────────────────

func (s *PostgresCatalogStore) CreateBundle(ctx context.Context, b Bundle) (Bundle, error) {
	b.ID = uuid.New()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle create begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO bundles (id, instructor_id, name, description, bundle_type, discount_percent, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.ID, b.InstructorID, b.Name, b.Description, b.Type, b.DiscountPercent, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle create: %w", err)
	}
	if err := insertOutbox(ctx, tx, eventBundleCreated, b); err != nil {
		return Bundle{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Bundle{}, fmt.Errorf("bundle create commit: %w", err)
	}
	return b, nil
}

func (s *PostgresCatalogStore) UpdateBundle(ctx context.Context, b Bundle) (Bundle, error) {
	cur, err := s.GetBundle(ctx, b.ID)
	if err != nil {
		return Bundle{}, err
	}
	if cur.InstructorID != b.InstructorID {
		return Bundle{}, ErrNotOwner
	}

	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle update begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
UPDATE bundles SET name=$2, description=$3, bundle_type=$4, discount_percent=$5, updated_at=$6
WHERE id=$1`,
		b.ID, b.Name, b.Description, b.Type, b.DiscountPercent, b.UpdatedAt)
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle update: %w", err)
	}
	if err := insertOutbox(ctx, tx, eventBundleUpdated, b); err != nil {
		return Bundle{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Bundle{}, fmt.Errorf("bundle update commit: %w", err)
	}
	return b, nil
}

func (s *PostgresCatalogStore) AddBundleCourse(ctx context.Context, instructorID uuid.UUID, bc BundleCourse) error {
	if err := s.checkOwner(ctx, bc.BundleID, instructorID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("membership add begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO bundle_courses (bundle_id, course_id, order_index)
VALUES ($1,$2,$3)
ON CONFLICT (bundle_id, course_id) DO UPDATE SET order_index = EXCLUDED.order_index`,
		bc.BundleID, bc.CourseID, bc.OrderIndex)
	if err != nil {
		return fmt.Errorf("membership add: %w", err)
	}
	if err := insertOutbox(ctx, tx, eventBundleCoursesChanged, bc); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("membership add commit: %w", err)
	}
	return nil
}

func (s *PostgresCatalogStore) RemoveBundleCourse(ctx context.Context, instructorID, bundleID, courseID uuid.UUID) error {
	if err := s.checkOwner(ctx, bundleID, instructorID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("membership remove begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `DELETE FROM bundle_courses WHERE bundle_id=$1 AND course_id=$2`, bundleID, courseID)
	if err != nil {
		return fmt.Errorf("membership remove: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := insertOutbox(ctx, tx, eventBundleCoursesChanged, BundleCourse{BundleID: bundleID, CourseID: courseID}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("membership remove commit: %w", err)
	}
	return nil
}

func (s *PostgresCatalogStore) ReorderBundleCourses(ctx context.Context, instructorID, bundleID uuid.UUID, order []BundleCourse) error {
	if err := s.checkOwner(ctx, bundleID, instructorID); err != nil {
		return err
	}
	if len(order) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(order))
	idx := make([]int, 0, len(order))
	for _, bc := range order {
		ids = append(ids, bc.CourseID)
		idx = append(idx, bc.OrderIndex)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("reorder begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
UPDATE bundle_courses bc
SET order_index = x.ord
FROM (SELECT unnest($2::uuid[]) AS cid, unnest($3::int[]) AS ord) x
WHERE bc.bundle_id = $1 AND bc.course_id = x.cid`,
		bundleID, ids, idx)
	if err != nil {
		return fmt.Errorf("reorder: %w", err)
	}
	if err := insertOutbox(ctx, tx, eventBundleCoursesChanged, BundleCourse{BundleID: bundleID}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reorder commit: %w", err)
	}
	return nil
}

func (s *PostgresCatalogStore) checkOwner(ctx context.Context, bundleID, instructorID uuid.UUID) error {
	b, err := s.GetBundle(ctx, bundleID)
	if err != nil {
		return err
	}
	if b.InstructorID != instructorID {
		return ErrNotOwner
	}
	return nil
}

// insertOutbox records an event in catalog_outbox inside the mutation's
// transaction; the outbox publisher ships it to NATS later.
func insertOutbox(ctx context.Context, tx pgx.Tx, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox marshal: %w", err)
	}
	_, err = tx.Exec(ctx, `
INSERT INTO catalog_outbox (id, event_type, payload, created_at)
VALUES ($1,$2,$3,$4)`,
		uuid.New(), eventType, body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("outbox insert: %w", err)
	}
	return nil
}
