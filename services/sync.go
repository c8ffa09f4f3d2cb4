package services

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// StorageSynchronizer makes a remote media folder mirror a local one.
type StorageSynchronizer struct {
	store ObjectStore
}

func NewStorageSynchronizer(store ObjectStore) *StorageSynchronizer {
	return &StorageSynchronizer{store: store}
}

// Reconcile clears remotePrefix, uploads localMediaDir (if it exists) and
// returns the uploaded keys relative to remotePrefix, as listed back from
// the store. A missing local directory leaves the remote folder empty.
func (s *StorageSynchronizer) Reconcile(ctx context.Context, localMediaDir, remotePrefix string) ([]string, error) {
	if err := s.store.DeleteRecursive(ctx, remotePrefix); err != nil {
		return nil, fmt.Errorf("clearing remote media: %w", err)
	}

	info, err := os.Stat(localMediaDir)
	switch {
	case os.IsNotExist(err):
		return []string{}, nil
	case err != nil:
		return nil, fmt.Errorf("reading local media: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("local media %s is not a directory", localMediaDir)
	}

	if err := s.store.CopyRecursive(ctx, localMediaDir, remotePrefix); err != nil {
		return nil, fmt.Errorf("uploading media: %w", err)
	}

	objects, err := s.store.ListObjects(ctx, remotePrefix)
	if err != nil {
		return nil, fmt.Errorf("listing remote media: %w", err)
	}

	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == remotePrefix {
			continue // directory marker
		}
		names = append(names, strings.TrimPrefix(obj.Key, remotePrefix))
	}
	sort.Strings(names)
	return names, nil
}
