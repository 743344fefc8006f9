// Package archive moves finished plans out of the active plans directory.
// Archived plans are renamed with a timestamp prefix so the archive sorts
// chronologically, stamped with archived_at, and become read-only as far as
// the rest of the system is concerned.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harrison/overseer/internal/filelock"
	"github.com/harrison/overseer/internal/models"
	"github.com/harrison/overseer/internal/planstore"
)

// ErrPlanActive indicates an attempt to archive a plan that has not reached a
// terminal status.
var ErrPlanActive = errors.New("archive: plan is not terminal")

// Archiver relocates terminal plans into the archive directory.
type Archiver struct {
	dir string
	now func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// New creates an archiver writing into dir.
func New(dir string, opts ...Option) *Archiver {
	a := &Archiver{dir: dir, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string {
	return a.dir
}

// Archive seals a terminal plan: stamps archived_at, writes it into the
// archive directory under a timestamped name, and removes the original file.
// Archiving an already-archived plan is a no-op returning its current path,
// so a crash between write and remove can simply be retried.
func (a *Archiver) Archive(plan *models.Plan) (string, error) {
	if plan.IsArchived() {
		return plan.FilePath, nil
	}
	if !plan.IsTerminal() {
		return "", fmt.Errorf("%w: status %s", ErrPlanActive, plan.Status)
	}

	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir: %w", err)
	}

	stamped := a.now().UTC()
	plan.ArchivedAt = &stamped

	dest := filepath.Join(a.dir, fmt.Sprintf("%s-%s.md", stamped.Format("2006-01-02T15-04-05"), plan.ID))
	data, err := planstore.Serialize(plan)
	if err != nil {
		plan.ArchivedAt = nil
		return "", err
	}
	if err := filelock.WriteAtomic(dest, data); err != nil {
		plan.ArchivedAt = nil
		return "", err
	}

	if plan.FilePath != "" && plan.FilePath != dest {
		if err := os.Remove(plan.FilePath); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("archive: remove original: %w", err)
		}
	}
	plan.FilePath = dest
	return dest, nil
}

// List loads every archived plan, oldest first. The timestamp prefix makes
// lexical order chronological.
func (a *Archiver) List() ([]*models.Plan, error) {
	entries, err := os.ReadDir(a.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: read dir: %w", err)
	}

	var plans []*models.Plan
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		path := filepath.Join(a.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		plan, err := planstore.Parse(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping unreadable archive %s: %v\n", entry.Name(), err)
			continue
		}
		plan.FilePath = path
		plans = append(plans, plan)
	}
	return plans, nil
}
