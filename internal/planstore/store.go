// Package planstore persists plans as markdown checklist files with atomic,
// lock-coordinated updates. The plan file is the single shared mutable
// resource in the system: every state transition is written back before the
// engine moves on, so a crash always leaves a resumable plan behind.
package planstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harrison/overseer/internal/consult"
	"github.com/harrison/overseer/internal/filelock"
	"github.com/harrison/overseer/internal/models"
)

var (
	// ErrPlanNotFound indicates no plan file exists where one was expected.
	ErrPlanNotFound = errors.New("planstore: plan not found")
	// ErrStepNotFound indicates the requested step ordinal does not exist.
	ErrStepNotFound = errors.New("planstore: step not found")
	// ErrStepTerminal indicates an attempt to mutate a completed or skipped step.
	ErrStepTerminal = errors.New("planstore: step is terminal")
	// ErrStepConflict indicates starting a step while another is in progress.
	ErrStepConflict = errors.New("planstore: another step is already in progress")
	// ErrPlanArchived indicates an attempt to mutate an archived plan.
	ErrPlanArchived = errors.New("planstore: plan is archived")
	// ErrConflictGate indicates approval was attempted while consultation
	// conflicts have no recorded resolution.
	ErrConflictGate = errors.New("planstore: unresolved conflicts block approval")
)

// UpdateMetrics captures contextual data about one plan update.
type UpdateMetrics struct {
	Path     string
	Ordinal  int
	OldState string
	NewState string
	Duration time.Duration
	Err      error
}

// Monitor receives metrics after each update attempt.
type Monitor func(UpdateMetrics)

// Store reads and writes plan files under a directory.
type Store struct {
	dir         string
	lockTimeout time.Duration
	monitor     Monitor
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long updates wait for the plan file lock.
// A non-positive duration blocks indefinitely.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithMonitor registers a callback receiving metrics after each update.
func WithMonitor(m Monitor) Option {
	return func(s *Store) { s.monitor = m }
}

// NewStore creates a store over dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{dir: dir}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Dir returns the plans directory.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor returns the file path a plan id maps to.
func (s *Store) PathFor(id string) string {
	return filepath.Join(s.dir, id+".md")
}

// Save serializes the plan and writes it atomically under the file lock.
// Plans without a FilePath are placed in the store directory by id.
func (s *Store) Save(plan *models.Plan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("planstore: %w", err)
	}
	if plan.FilePath == "" {
		plan.FilePath = s.PathFor(plan.ID)
	}

	data, err := Serialize(plan)
	if err != nil {
		return err
	}
	return filelock.WriteLockedTimeout(plan.FilePath, data, s.lockTimeout)
}

// Load reads a plan from an explicit path.
func (s *Store) Load(path string) (*models.Plan, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("planstore: read %s: %w", path, err)
	}

	plan, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("planstore: parse %s: %w", path, err)
	}
	plan.FilePath = path
	return plan, nil
}

// List loads every plan in the store directory, newest first.
func (s *Store) List() ([]*models.Plan, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("planstore: read dir: %w", err)
	}

	var plans []*models.Plan
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		plan, err := s.Load(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping unreadable plan %s: %v\n", entry.Name(), err)
			continue
		}
		plans = append(plans, plan)
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})
	return plans, nil
}

// Current returns the newest non-terminal plan, the plan a run or validate
// command should operate on. ErrPlanNotFound when there is none.
func (s *Store) Current() (*models.Plan, error) {
	plans, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, plan := range plans {
		if !plan.IsTerminal() && !plan.IsArchived() {
			return plan, nil
		}
	}
	return nil, ErrPlanNotFound
}

// UpdateStep transitions one step and persists the plan, all under the file
// lock so concurrent writers serialize. The store enforces the structural
// invariants here rather than trusting callers: terminal steps are immutable
// and at most one step may be in progress.
func (s *Store) UpdateStep(path string, ordinal int, state, notes string) error {
	start := time.Now()
	metrics := UpdateMetrics{Path: path, Ordinal: ordinal, NewState: state}
	defer func() {
		metrics.Duration = time.Since(start)
		if s.monitor != nil {
			s.monitor(metrics)
		}
	}()

	err := s.withPlan(path, func(plan *models.Plan) error {
		step := plan.StepByOrdinal(ordinal)
		if step == nil {
			return fmt.Errorf("%w: ordinal %d", ErrStepNotFound, ordinal)
		}
		metrics.OldState = step.State

		if step.State == models.StepCompleted || step.State == models.StepSkipped {
			return fmt.Errorf("%w: step %d is %s", ErrStepTerminal, ordinal, step.State)
		}
		if state == models.StepInProgress && plan.InProgressCount() > 0 && step.State != models.StepInProgress {
			return fmt.Errorf("%w: starting step %d", ErrStepConflict, ordinal)
		}

		now := time.Now()
		if state == models.StepInProgress && step.StartedAt == nil {
			step.StartedAt = &now
		}
		step.State = state
		if step.IsTerminal() {
			step.CompletedAt = &now
		}
		if notes != "" {
			step.Notes = notes
		}
		return nil
	})
	metrics.Err = err
	return err
}

// UpdateStatus transitions the plan status and persists it. Lifecycle
// violations are rejected before anything touches disk, and a plan whose
// consultations still conflict can never reach approved regardless of what
// the caller checked.
func (s *Store) UpdateStatus(path, status string) error {
	return s.withPlan(path, func(plan *models.Plan) error {
		if status == models.PlanApproved {
			conflicts := consult.DetectConflicts(plan.Consultations)
			consult.ApplyResolutions(conflicts, plan.Resolutions)
			if open := consult.Unresolved(conflicts); len(open) > 0 {
				return fmt.Errorf("%w: %d open", ErrConflictGate, len(open))
			}
		}
		return plan.Transition(status)
	})
}

// RecordConsultations appends consultations to the plan and persists it.
func (s *Store) RecordConsultations(path string, consultations []models.Consultation) error {
	return s.withPlan(path, func(plan *models.Plan) error {
		plan.Consultations = append(plan.Consultations, consultations...)
		models.SortConsultations(plan.Consultations)
		return nil
	})
}

// RecordResolution persists an explicit conflict decision.
func (s *Store) RecordResolution(path, conflictKey, decision string) error {
	return s.withPlan(path, func(plan *models.Plan) error {
		plan.RecordResolution(conflictKey, decision)
		return nil
	})
}

// withPlan performs a locked read-modify-write cycle on one plan file.
func (s *Store) withPlan(path string, mutate func(*models.Plan) error) error {
	lock := filelock.New(path + ".lock")
	if err := lock.AcquireTimeout(s.lockTimeout); err != nil {
		return err
	}
	defer lock.Release()

	plan, err := s.Load(path)
	if err != nil {
		return err
	}
	if plan.IsArchived() {
		return fmt.Errorf("%w: %s", ErrPlanArchived, plan.ID)
	}

	if err := mutate(plan); err != nil {
		return err
	}

	data, err := Serialize(plan)
	if err != nil {
		return err
	}
	return filelock.WriteAtomic(path, data)
}
