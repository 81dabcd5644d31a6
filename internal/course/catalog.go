package course

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML layout of a seed catalog file.
type catalogFile struct {
	Courses []Course `yaml:"courses"`
}

// LoadCatalog reads every .yaml/.yml file under root (or root itself when it
// is a file) and returns the validated courses found in them. Files without a
// top-level courses list are skipped.
func LoadCatalog(root string, now time.Time) ([]*Course, error) {
	var courses []*Course
	seen := make(map[string]string)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		loaded, err := loadCatalogFile(path, now)
		if err != nil {
			return err
		}
		for _, c := range loaded {
			if prev, dup := seen[c.Title]; dup {
				return fmt.Errorf("%s: course %q already defined in %s", path, c.Title, prev)
			}
			seen[c.Title] = path
			courses = append(courses, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "courses", len(courses))
	return courses, nil
}

func loadCatalogFile(path string, now time.Time) ([]*Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
		return nil, nil
	}

	courses := make([]*Course, 0, len(file.Courses))
	for i, raw := range file.Courses {
		c, err := New(raw, now)
		if err != nil {
			return nil, fmt.Errorf("%s: course %d: %w", path, i+1, err)
		}
		courses = append(courses, c)
	}
	return courses, nil
}

// Seed loads the catalog at root into store and returns how many courses were
// created. Courses whose id or title already exists are skipped, so seeding
// can be repeated.
func Seed(ctx context.Context, store Store, root string, now time.Time) (int, error) {
	courses, err := LoadCatalog(root, now)
	if err != nil {
		return 0, err
	}
	existing, err := store.List(ctx, Filter{})
	if err != nil {
		return 0, fmt.Errorf("list courses: %w", err)
	}
	known := make(map[string]bool, 2*len(existing))
	for _, c := range existing {
		known[c.ID] = true
		known[c.Title] = true
	}

	created := 0
	for _, c := range courses {
		if known[c.ID] || known[c.Title] {
			continue
		}
		if err := store.Create(ctx, c); err != nil {
			return created, fmt.Errorf("seed %q: %w", c.Title, err)
		}
		created++
	}
	slog.Info("catalog seeded", "path", root, "courses", len(courses), "created", created)
	return created, nil
}
