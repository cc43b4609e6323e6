// Package catalog loads course-catalog dumps from object storage into the
// database.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/sugang-app/apiserver/internal/services"
	"github.com/sugang-app/apiserver/internal/storage"
	"github.com/sugang-app/apiserver/types"
)

// Entry is one course in a catalog dump file: a JSON array of these.
type Entry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Professor  string `json:"professor"`
	Department string `json:"department"`
	Credits    int    `json:"credits"`
	Schedule   string `json:"schedule"`
	Capacity   int    `json:"capacity"`
}

// Importer reads catalog dumps from object storage and upserts them.
type Importer struct {
	storage *storage.Storage
	courses services.CourseRepository
}

// NewImporter constructs an Importer with its dependencies.
func NewImporter(st *storage.Storage, courses services.CourseRepository) *Importer {
	return &Importer{storage: st, courses: courses}
}

// Upload seeds a catalog dump into object storage under key, creating the
// bucket when needed. The dump is validated on the way in so a malformed file
// never lands in the bucket.
func (i *Importer) Upload(ctx context.Context, key string, data []byte) error {
	if _, err := Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("invalid catalog dump: %w", err)
	}

	if err := i.storage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure catalog bucket: %w", err)
	}

	if err := i.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("upload catalog object %q: %w", key, err)
	}

	log.Printf("[catalog] uploaded %d bytes to %s/%s", len(data), i.storage.Bucket(), key)
	return nil
}

// Import fetches the object at key and upserts every entry. Entries without
// a name or with a non-positive capacity are skipped and logged; the import
// continues. Returns the number of courses upserted.
func (i *Importer) Import(ctx context.Context, key string) (int, error) {
	reader, err := i.storage.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("fetch catalog object %q: %w", key, err)
	}
	defer reader.Close()

	entries, err := Decode(reader)
	if err != nil {
		return 0, fmt.Errorf("decode catalog %q: %w", key, err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.Name == "" || entry.Capacity <= 0 {
			log.Printf("[catalog] skipping invalid entry id=%q name=%q capacity=%d",
				entry.ID, entry.Name, entry.Capacity)
			continue
		}
		if _, err := i.courses.Upsert(ctx, types.Course{
			ID:         entry.ID,
			Name:       entry.Name,
			Professor:  entry.Professor,
			Department: entry.Department,
			Credits:    entry.Credits,
			Schedule:   entry.Schedule,
			Capacity:   entry.Capacity,
		}); err != nil {
			return imported, fmt.Errorf("upsert course %q: %w", entry.Name, err)
		}
		imported++
	}

	log.Printf("[catalog] imported %d of %d entries from %q", imported, len(entries), key)
	return imported, nil
}

// Decode parses a catalog dump: a JSON array of entries.
func Decode(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}
