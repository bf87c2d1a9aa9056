package annotation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-review/inkwell/internal/errors"
	"github.com/inkwell-review/inkwell/internal/objstore"
	"github.com/inkwell-review/inkwell/internal/sidecar"
)

// Store persists annotation sets as JSON sidecars next to their source
// document. Each (source key, owner) pair maps to one sidecar object; saves
// replace the whole set, last writer wins.
type Store struct {
	blobs objstore.Interface
	now   func() time.Time
}

// NewStore creates a Store on top of the given object store.
func NewStore(blobs objstore.Interface) *Store {
	return &Store{blobs: blobs, now: time.Now}
}

// Load reads the annotation set for (sourceKey, owner). A missing sidecar is
// not an error: it returns an empty set.
func (s *Store) Load(ctx context.Context, sourceKey, owner string) (*Set, error) {
	key := sidecar.DeriveAnnotationsKey(sourceKey, owner)

	set := &Set{}
	err := objstore.GetJSON(ctx, s.blobs, key, set)
	if err != nil {
		if errors.Is(err, objstore.ErrNotExist) {
			return &Set{Annotations: []Annotation{}}, nil
		}
		return nil, err
	}
	if set.Annotations == nil {
		set.Annotations = []Annotation{}
	}
	return set, nil
}

// Save replaces the annotation set for (sourceKey, owner). Every record gets
// UpdatedAt stamped to now; CreatedAt is preserved when present on the
// incoming record and stamped otherwise. Records without an id get a fresh
// one. The stored set is returned.
func (s *Store) Save(ctx context.Context, sourceKey, owner string, anns []Annotation) (*Set, error) {
	now := s.now().UTC()

	stored := make([]Annotation, len(anns))
	for i := range anns {
		a := anns[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
		stored[i] = a
	}

	key := sidecar.DeriveAnnotationsKey(sourceKey, owner)
	set := &Set{Annotations: stored}
	if err := objstore.PutJSON(ctx, s.blobs, key, set); err != nil {
		return nil, err
	}
	return set, nil
}

// Append loads the current set, appends one record with a freshly generated
// id, persists the result and returns the stored record.
func (s *Store) Append(ctx context.Context, sourceKey, owner string, ann Annotation) (*Annotation, error) {
	set, err := s.Load(ctx, sourceKey, owner)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ann.ID = uuid.NewString()
	ann.CreatedAt = now
	ann.UpdatedAt = now

	set.Annotations = append(set.Annotations, ann)

	key := sidecar.DeriveAnnotationsKey(sourceKey, owner)
	if err := objstore.PutJSON(ctx, s.blobs, key, set); err != nil {
		return nil, err
	}
	return &ann, nil
}

// Delete removes the sidecar for (sourceKey, owner). Missing sidecars are
// ignored.
func (s *Store) Delete(ctx context.Context, sourceKey, owner string) error {
	return s.blobs.Delete(ctx, sidecar.DeriveAnnotationsKey(sourceKey, owner))
}
