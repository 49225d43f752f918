// Package combo assembles an ordered, same-category set of courses into a
// discounted bundle. Order must ascend by difficulty before submission;
// drag reordering may violate that and is flagged rather than prevented.
package combo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// unknownOrderSentinel pushes courses with no difficulty rank to the end.
const unknownOrderSentinel = 1 << 30

var (
	ErrCategoryMismatch = errors.New("course belongs to a different category")
	ErrEmptySelection   = errors.New("no courses selected")
	ErrSubmitInFlight   = errors.New("submission already in progress")
)

// OrderViolationError names the first adjacent pair that breaks ascending
// difficulty order.
type OrderViolationError struct {
	FirstTitle  string
	FirstOrder  int
	SecondTitle string
	SecondOrder int
}

func (e *OrderViolationError) Error() string {
	return fmt.Sprintf("%q (level %d) must come after %q (level %d)",
		e.FirstTitle, e.FirstOrder, e.SecondTitle, e.SecondOrder)
}

// Course is a catalog course as the composer sees it. OrderIndex is the
// difficulty rank of the course's level; zero means unranked.
type Course struct {
	ID         uuid.UUID
	CategoryID uuid.UUID
	Title      string
	OrderIndex int
}

// BundleMeta is the instructor-supplied bundle metadata sent on submit.
type BundleMeta struct {
	Name            string
	Description     string
	Type            string
	DiscountPercent int
}

// CourseOrder is one (course, position) pair in the final membership write.
type CourseOrder struct {
	CourseID   uuid.UUID
	OrderIndex int
}

// BundleAPI is the catalog surface the composer submits through. Calls are
// issued sequentially; there is no rollback on partial failure.
type BundleAPI interface {
	GetBundle(ctx context.Context, id uuid.UUID) (BundleMeta, error)
	ListBundleCourses(ctx context.Context, id uuid.UUID) ([]Course, error)
	CreateBundle(ctx context.Context, meta BundleMeta) (uuid.UUID, error)
	UpdateBundle(ctx context.Context, id uuid.UUID, meta BundleMeta) error
	AddBundleCourse(ctx context.Context, bundleID, courseID uuid.UUID, orderIndex int) error
	RemoveBundleCourse(ctx context.Context, bundleID, courseID uuid.UUID) error
	ReorderBundleCourses(ctx context.Context, bundleID uuid.UUID, order []CourseOrder) error
}

// Composer owns one bundle-building session. It is not safe for concurrent
// use; the host serializes gestures onto it.
type Composer struct {
	api BundleAPI

	bundleID uuid.UUID // uuid.Nil in create mode
	meta     BundleMeta

	selected []Course
	category uuid.UUID // pinned by the first selected course

	// original membership as loaded, for the edit-mode diff
	original map[uuid.UUID]struct{}

	submitting bool
}

// NewComposer starts a create-mode session with an empty selection.
func NewComposer(api BundleAPI) *Composer {
	return &Composer{api: api, original: make(map[uuid.UUID]struct{})}
}

// Load starts an edit-mode session hydrated from an existing bundle.
func Load(ctx context.Context, api BundleAPI, bundleID uuid.UUID) (*Composer, error) {
	meta, err := api.GetBundle(ctx, bundleID)
	if err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}
	members, err := api.ListBundleCourses(ctx, bundleID)
	if err != nil {
		return nil, fmt.Errorf("load bundle courses: %w", err)
	}

	c := &Composer{
		api:      api,
		bundleID: bundleID,
		meta:     meta,
		selected: members,
		original: make(map[uuid.UUID]struct{}, len(members)),
	}
	for _, m := range members {
		c.original[m.ID] = struct{}{}
	}
	if len(members) > 0 {
		c.category = members[0].CategoryID
	}
	return c, nil
}

// Meta returns the loaded bundle metadata (edit mode).
func (c *Composer) Meta() BundleMeta { return c.meta }

// EditMode reports whether the session was hydrated from an existing bundle.
func (c *Composer) EditMode() bool { return c.bundleID != uuid.Nil }

// Selected returns the current selection in order.
func (c *Composer) Selected() []Course {
	out := make([]Course, len(c.selected))
	copy(out, c.selected)
	return out
}

// Toggle adds the course if absent or removes it if present. Adding a course
// from a different category than the pinned one is rejected with no state
// change. Every successful add re-sorts the selection by difficulty.
func (c *Composer) Toggle(course Course) error {
	for i, sel := range c.selected {
		if sel.ID == course.ID {
			c.removeAt(i)
			return nil
		}
	}
	if c.category != uuid.Nil && course.CategoryID != c.category {
		return ErrCategoryMismatch
	}
	if len(c.selected) == 0 {
		c.category = course.CategoryID
	}
	c.selected = append(c.selected, course)
	c.sortByLevel()
	return nil
}

// Remove drops the course by id. Unknown ids are a no-op.
func (c *Composer) Remove(courseID uuid.UUID) {
	for i, sel := range c.selected {
		if sel.ID == courseID {
			c.removeAt(i)
			return
		}
	}
}

// AutoSort re-sorts the selection ascending by difficulty. It always
// produces a violation-free order and is idempotent.
func (c *Composer) AutoSort() {
	c.sortByLevel()
}

// Reorder moves the element at from to position to, keeping everyone else's
// relative order. This is the one gesture that can introduce a violation.
func (c *Composer) Reorder(from, to int) {
	n := len(c.selected)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return
	}
	moved := c.selected[from]
	rest := append(c.selected[:from:from], c.selected[from+1:]...)
	c.selected = append(rest[:to:to], append([]Course{moved}, rest[to:]...)...)
}

// ValidateOrder scans adjacent pairs and returns the first violation of
// ascending difficulty, or nil. It does not enumerate further violations.
func (c *Composer) ValidateOrder() error {
	for i := 0; i+1 < len(c.selected); i++ {
		a, b := c.selected[i], c.selected[i+1]
		if effectiveOrder(a) > effectiveOrder(b) {
			return &OrderViolationError{
				FirstTitle:  a.Title,
				FirstOrder:  a.OrderIndex,
				SecondTitle: b.Title,
				SecondOrder: b.OrderIndex,
			}
		}
	}
	return nil
}

// HasOrderViolation reports whether any adjacent pair breaks ascending order.
func (c *Composer) HasOrderViolation() bool {
	return c.ValidateOrder() != nil
}

// Submit validates locally, then writes the bundle through the catalog API.
// Any local validation failure means zero network calls. Edit-mode writes
// run sequentially (deletes, creates, one bulk reorder); a mid-sequence
// backend failure leaves already-applied steps in place.
func (c *Composer) Submit(ctx context.Context, meta BundleMeta) (uuid.UUID, error) {
	if c.submitting {
		return uuid.Nil, ErrSubmitInFlight
	}
	if len(c.selected) == 0 {
		return uuid.Nil, ErrEmptySelection
	}
	if err := c.ValidateOrder(); err != nil {
		return uuid.Nil, err
	}
	// Re-check homogeneity: the add-time gate is soft and reorder history
	// could have been hydrated from inconsistent backend state.
	for _, sel := range c.selected {
		if sel.CategoryID != c.category {
			return uuid.Nil, ErrCategoryMismatch
		}
	}

	c.submitting = true
	defer func() { c.submitting = false }()

	if c.bundleID == uuid.Nil {
		return c.submitCreate(ctx, meta)
	}
	return c.bundleID, c.submitUpdate(ctx, meta)
}

func (c *Composer) submitCreate(ctx context.Context, meta BundleMeta) (uuid.UUID, error) {
	id, err := c.api.CreateBundle(ctx, meta)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create bundle: %w", err)
	}
	for i, sel := range c.selected {
		if err := c.api.AddBundleCourse(ctx, id, sel.ID, i); err != nil {
			return uuid.Nil, fmt.Errorf("add course %s: %w", sel.ID, err)
		}
	}
	return id, nil
}

func (c *Composer) submitUpdate(ctx context.Context, meta BundleMeta) error {
	if err := c.api.UpdateBundle(ctx, c.bundleID, meta); err != nil {
		return fmt.Errorf("update bundle: %w", err)
	}

	current := make(map[uuid.UUID]int, len(c.selected))
	for i, sel := range c.selected {
		current[sel.ID] = i
	}

	for id := range c.original {
		if _, keep := current[id]; !keep {
			if err := c.api.RemoveBundleCourse(ctx, c.bundleID, id); err != nil {
				return fmt.Errorf("remove course %s: %w", id, err)
			}
		}
	}
	for i, sel := range c.selected {
		if _, had := c.original[sel.ID]; !had {
			if err := c.api.AddBundleCourse(ctx, c.bundleID, sel.ID, i); err != nil {
				return fmt.Errorf("add course %s: %w", sel.ID, err)
			}
		}
	}

	// The bulk write is authoritative for the whole final order, whatever
	// the interleaved add/remove history looked like.
	order := make([]CourseOrder, 0, len(c.selected))
	for i, sel := range c.selected {
		order = append(order, CourseOrder{CourseID: sel.ID, OrderIndex: i})
	}
	if err := c.api.ReorderBundleCourses(ctx, c.bundleID, order); err != nil {
		return fmt.Errorf("reorder courses: %w", err)
	}
	return nil
}

func (c *Composer) removeAt(i int) {
	c.selected = append(c.selected[:i], c.selected[i+1:]...)
	if len(c.selected) == 0 {
		c.category = uuid.Nil
	}
}

func (c *Composer) sortByLevel() {
	sort.SliceStable(c.selected, func(i, j int) bool {
		return effectiveOrder(c.selected[i]) < effectiveOrder(c.selected[j])
	})
}

func effectiveOrder(course Course) int {
	if course.OrderIndex <= 0 {
		return unknownOrderSentinel
	}
	return course.OrderIndex
}
