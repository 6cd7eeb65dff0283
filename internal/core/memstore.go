package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs tests and STORE_DRIVER=memory.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[string]Dataset
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		datasets: make(map[string]Dataset),
		now:      time.Now,
	}
}

func (s *MemoryStore) Insert(_ context.Context, d Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.datasets[d.ID]; exists {
		return fmt.Errorf("insert dataset %s: %w", d.ID, ErrConflict)
	}
	if d.Revision == 0 {
		d.Revision = 1
	}
	now := s.now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	s.datasets[d.ID] = d.Clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.datasets[id]
	if !ok {
		return Dataset{}, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, u Update) (Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.datasets[id]
	if !ok {
		return Dataset{}, ErrNotFound
	}

	next := cur.Clone()
	if err := u.apply(&next); err != nil {
		return Dataset{}, err
	}
	next.Revision = cur.Revision + 1
	next.UpdatedAt = s.now().UTC()
	if err := next.Validate(); err != nil {
		return Dataset{}, fmt.Errorf("update dataset %s: %w", id, err)
	}

	s.datasets[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[id]; !ok {
		return ErrNotFound
	}
	delete(s.datasets, id)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, d := range s.datasets {
		if f.Matches(d) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Find(_ context.Context, f Filter, p Page) ([]Dataset, error) {
	s.mu.RLock()
	matched := make([]Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		if f.Matches(d) {
			matched = append(matched, d.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UploadDate.Equal(matched[j].UploadDate) {
			return matched[i].UploadDate.After(matched[j].UploadDate)
		}
		return matched[i].ID < matched[j].ID
	})

	if p.Skip >= len(matched) {
		return []Dataset{}, nil
	}
	matched = matched[p.Skip:]
	if p.Limit > 0 && p.Limit < len(matched) {
		matched = matched[:p.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) DistinctCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, d := range s.datasets {
		c := d.Metadata.CategoryEN
		if c == "" {
			continue
		}
		if _, dup := seen[c]; !dup {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Matches reports whether d satisfies the filter.
func (f Filter) Matches(d Dataset) bool {
	if len(f.Categories) > 0 {
		ok := slices.ContainsFunc(f.Categories, func(c string) bool {
			return c == d.Metadata.CategoryEN || c == d.Metadata.CategoryAR
		})
		if !ok {
			return false
		}
	}

	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	fields := []string{
		d.Metadata.TitleEN, d.Metadata.TitleAR,
		d.Metadata.DescriptionEN, d.Metadata.DescriptionAR,
		d.OriginalFilename, d.FileType,
	}
	fields = append(fields, d.Metadata.Tags...)
	return slices.ContainsFunc(fields, func(v string) bool {
		return strings.Contains(strings.ToLower(v), needle)
	})
}

// apply performs u against d after checking its preconditions. Revision
// and timestamps are left to the store.
func (u Update) apply(d *Dataset) error {
	if u.ExpectRevision != 0 && d.Revision != u.ExpectRevision {
		return fmt.Errorf("revision %d, expected %d: %w", d.Revision, u.ExpectRevision, ErrConflict)
	}
	if len(u.IfStatus) > 0 && !slices.Contains(u.IfStatus, d.Status) {
		return fmt.Errorf("status %s: %w", d.Status, ErrConflict)
	}
	if u.AmendLastComment != nil && len(d.MetadataHistory) == 0 {
		return fmt.Errorf("no history entry to amend: %w", ErrConflict)
	}

	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.Metadata != nil {
		d.Metadata = u.Metadata.clone()
	}
	if u.File != nil {
		d.Profile = u.File.Profile
		d.Columns = cloneColumns(u.File.Profile.Columns)
		d.UploadDate = u.File.UploadDate
	}
	if u.CurrentVersion != nil {
		d.CurrentVersion = *u.CurrentVersion
	}
	if u.PushHistory != nil {
		h := *u.PushHistory
		h.Metadata = h.Metadata.clone()
		d.MetadataHistory = append(d.MetadataHistory, h)
	}
	if u.AmendLastComment != nil {
		d.MetadataHistory[len(d.MetadataHistory)-1].Comment = *u.AmendLastComment
	}
	if u.PushVersion != nil {
		v := *u.PushVersion
		v.Columns = cloneColumns(v.Columns)
		d.Versions = append(d.Versions, v)
	}
	return nil
}
