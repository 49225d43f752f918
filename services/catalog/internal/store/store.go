package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a course or bundle does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotOwner is returned when a mutation targets a bundle owned by
	// someone else.
	ErrNotOwner = errors.New("not bundle owner")
)

// Course publication states.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Level is a course's difficulty rank. OrderIndex drives the ascending-order
// rule inside bundles; it is assigned by the platform, not by instructors.
type Level struct {
	Name       string `json:"name"`
	OrderIndex int    `json:"order_index"`
}

// Course is the internal catalog representation of a sellable course.
type Course struct {
	ID           uuid.UUID `json:"id"`
	InstructorID uuid.UUID `json:"instructor_id"`
	CategoryID   uuid.UUID `json:"category_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	Level        Level     `json:"level"`
	CreatedAt    time.Time `json:"created_at"`
}

// Bundle is a discounted, ordered collection of courses sold as one unit.
type Bundle struct {
	ID              uuid.UUID `json:"id"`
	InstructorID    uuid.UUID `json:"instructor_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Type            string    `json:"type"`
	DiscountPercent int       `json:"discount_percent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BundleCourse is one membership row: a course's position within a bundle.
type BundleCourse struct {
	BundleID   uuid.UUID `json:"bundle_id"`
	CourseID   uuid.UUID `json:"course_id"`
	OrderIndex int       `json:"order_index"`
}

// CourseFilter narrows ListCourses. Zero fields are ignored.
type CourseFilter struct {
	InstructorID uuid.UUID
	CategoryID   uuid.UUID
	Status       string
}

// CatalogStore defines all persistence operations for the catalog service.
type CatalogStore interface {
	// Course reads
	ListCourses(ctx context.Context, f CourseFilter) ([]Course, error)
	GetCoursesByIDs(ctx context.Context, ids []uuid.UUID) ([]Course, error)

	// Bundle reads
	GetBundle(ctx context.Context, id uuid.UUID) (Bundle, error)
	ListBundleCourses(ctx context.Context, bundleID uuid.UUID) ([]BundleCourse, error)

	// Bundle writes. Mutations check ownership and return ErrNotOwner on
	// mismatch; membership writes also record an outbox event so downstream
	// caches learn about the change.
	CreateBundle(ctx context.Context, b Bundle) (Bundle, error)
	UpdateBundle(ctx context.Context, b Bundle) (Bundle, error)
	AddBundleCourse(ctx context.Context, instructorID uuid.UUID, bc BundleCourse) error
	RemoveBundleCourse(ctx context.Context, instructorID, bundleID, courseID uuid.UUID) error
	// ReorderBundleCourses rewrites order_index for the entire membership in
	// one transaction; the given order is authoritative.
	ReorderBundleCourses(ctx context.Context, instructorID, bundleID uuid.UUID, order []BundleCourse) error
}
