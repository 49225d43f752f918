package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryCatalogStore is a development-only in-memory implementation.
type InMemoryCatalogStore struct {
	mu      sync.RWMutex
	courses map[uuid.UUID]Course
	bundles map[uuid.UUID]Bundle
	members map[uuid.UUID][]BundleCourse // bundle id -> memberships
}

func NewInMemoryCatalogStore() *InMemoryCatalogStore {
	return &InMemoryCatalogStore{
		courses: make(map[uuid.UUID]Course),
		bundles: make(map[uuid.UUID]Bundle),
		members: make(map[uuid.UUID][]BundleCourse),
	}
}

// SeedCourse inserts a course directly; test and dev setup helper.
func (s *InMemoryCatalogStore) SeedCourse(c Course) Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.courses[c.ID] = c
	return c
}

func (s *InMemoryCatalogStore) ListCourses(_ context.Context, f CourseFilter) ([]Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Course
	for _, c := range s.courses {
		if f.InstructorID != uuid.Nil && c.InstructorID != f.InstructorID {
			continue
		}
		if f.CategoryID != uuid.Nil && c.CategoryID != f.CategoryID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level.OrderIndex != out[j].Level.OrderIndex {
			return out[i].Level.OrderIndex < out[j].Level.OrderIndex
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryCatalogStore) GetCoursesByIDs(_ context.Context, ids []uuid.UUID) ([]Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Course
	for _, id := range ids {
		if c, ok := s.courses[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *InMemoryCatalogStore) GetBundle(_ context.Context, id uuid.UUID) (Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bundles[id]
	if !ok {
		return Bundle{}, ErrNotFound
	}
	return b, nil
}

func (s *InMemoryCatalogStore) ListBundleCourses(_ context.Context, bundleID uuid.UUID) ([]BundleCourse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]BundleCourse, len(s.members[bundleID]))
	copy(out, s.members[bundleID])
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (s *InMemoryCatalogStore) CreateBundle(_ context.Context, b Bundle) (Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = uuid.New()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	s.bundles[b.ID] = b
	return b, nil
}

func (s *InMemoryCatalogStore) UpdateBundle(_ context.Context, b Bundle) (Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.bundles[b.ID]
	if !ok {
		return Bundle{}, ErrNotFound
	}
	if cur.InstructorID != b.InstructorID {
		return Bundle{}, ErrNotOwner
	}
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.bundles[b.ID] = b
	return b, nil
}

func (s *InMemoryCatalogStore) AddBundleCourse(_ context.Context, instructorID uuid.UUID, bc BundleCourse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwnerLocked(bc.BundleID, instructorID); err != nil {
		return err
	}
	for i, m := range s.members[bc.BundleID] {
		if m.CourseID == bc.CourseID {
			s.members[bc.BundleID][i].OrderIndex = bc.OrderIndex
			return nil
		}
	}
	s.members[bc.BundleID] = append(s.members[bc.BundleID], bc)
	return nil
}

func (s *InMemoryCatalogStore) RemoveBundleCourse(_ context.Context, instructorID, bundleID, courseID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwnerLocked(bundleID, instructorID); err != nil {
		return err
	}
	cur := s.members[bundleID]
	for i, m := range cur {
		if m.CourseID == courseID {
			s.members[bundleID] = append(cur[:i], cur[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryCatalogStore) ReorderBundleCourses(_ context.Context, instructorID, bundleID uuid.UUID, order []BundleCourse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwnerLocked(bundleID, instructorID); err != nil {
		return err
	}
	byCourse := make(map[uuid.UUID]int, len(order))
	for _, bc := range order {
		byCourse[bc.CourseID] = bc.OrderIndex
	}
	for i, m := range s.members[bundleID] {
		if ord, ok := byCourse[m.CourseID]; ok {
			s.members[bundleID][i].OrderIndex = ord
		}
	}
	return nil
}

func (s *InMemoryCatalogStore) checkOwnerLocked(bundleID, instructorID uuid.UUID) error {
	b, ok := s.bundles[bundleID]
	if !ok {
		return ErrNotFound
	}
	if b.InstructorID != instructorID {
		return ErrNotOwner
	}
	return nil
}
