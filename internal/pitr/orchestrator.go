// Package pitr implements the cross-instance point-in-time restore: delete
// the pre-existing target database after confirmation, wait out the
// platform's deletion and storage-accounting lag, validate capacity, submit
// the restore, and poll the target until it is online. Progress is recorded
// durably so an interrupted run resumes from the phase it reached.
package pitr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/frobelworks/dbops/internal/config"
	"github.com/frobelworks/dbops/internal/mi"
	"github.com/frobelworks/dbops/internal/poll"
	"github.com/frobelworks/dbops/internal/state"
)

// DatabaseManager issues the administrative operations against the target
// instance.
type DatabaseManager interface {
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
	SubmitRestore(ctx context.Context, sourceDB, targetDB string, restorePoint time.Time) error
	// Status returns the platform status of the target database; lookup
	// failures surface as mi.StatusUnknown, not as errors.
	Status(ctx context.Context, name string) (string, error)
	TotalStorageMB(ctx context.Context) (float64, error)
}

// UsedStorageReader reads the target instance's consumed storage.
type UsedStorageReader interface {
	UsedStorageMB(ctx context.Context) (float64, error)
}

// SourceSizer estimates the source database's on-disk size.
type SourceSizer interface {
	DatabaseSizeMB(ctx context.Context, database string) (float64, error)
}

// Prompter asks for the interactive deletion confirmation.
type Prompter interface {
	ConfirmDelete(name string) (bool, error)
}

// RunStore persists workflow phases between steps and invocations.
type RunStore interface {
	Begin(ctx context.Context, targetDB string, phase state.Phase, detail string) (string, error)
	Advance(ctx context.Context, id string, phase state.Phase, detail string) error
	Current(ctx context.Context, targetDB string) (state.Run, error)
}

// Sleeper waits out the post-deletion cooldown; injected so tests do not
// sleep for real.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// ContextSleeper is the production Sleeper.
type ContextSleeper struct{}

func (ContextSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Orchestrator drives one cross-instance restore run.
type Orchestrator struct {
	Manager DatabaseManager
	Metrics UsedStorageReader
	Sizer   SourceSizer
	Prompt  Prompter
	Runs    RunStore
	Sleeper Sleeper
	Cfg     config.PITRConfig

	// SourceDB is the production database; TargetDB the name it is
	// restored under on the target instance.
	SourceDB string
	TargetDB string

	// Now supplies the restore point reference; defaults to time.Now.
	Now func() time.Time
	Out io.Writer
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Run executes or resumes the workflow and returns its terminal outcome.
// The error return is reserved for unexpected platform failures; every
// planned ending, including the aborts, is an Outcome.
func (o *Orchestrator) Run(ctx context.Context) (Outcome, error) {
	run, err := o.Runs.Current(ctx, o.TargetDB)
	if err != nil {
		if errors.Is(err, state.ErrNoRun) {
			return o.start(ctx)
		}
		return OutcomeUnknown, err
	}

	fmt.Fprintf(o.Out, "Resuming run %s from phase %s\n", run.ID, run.Phase)
	switch run.Phase {
	case state.PhasePendingDelete:
		return o.awaitDeleted(ctx, run.ID)
	case state.PhaseDeleted:
		return o.cooldown(ctx, run.ID)
	case state.PhaseCooldownElapsed:
		return o.checkCapacityAndRestore(ctx, run.ID)
	case state.PhaseRestoring:
		return o.awaitOnline(ctx, run.ID)
	default:
		return OutcomeUnknown, fmt.Errorf("run %s is in unexpected phase %s", run.ID, run.Phase)
	}
}

func (o *Orchestrator) start(ctx context.Context) (Outcome, error) {
	fmt.Fprintf(o.Out, "Checking for existing database %s on the target instance\n", o.TargetDB)
	exists, err := o.Manager.Exists(ctx, o.TargetDB)
	if err != nil {
		return OutcomeUnknown, err
	}

	if !exists {
		fmt.Fprintf(o.Out, "✓ No existing database; skipping deletion.\n")
		id, err := o.Runs.Begin(ctx, o.TargetDB, state.PhaseCooldownElapsed, "no existing database")
		if err != nil {
			return OutcomeUnknown, err
		}
		return o.checkCapacityAndRestore(ctx, id)
	}

	confirmed, err := o.Prompt.ConfirmDelete(o.TargetDB)
	if err != nil {
		return OutcomeUnknown, err
	}
	if !confirmed {
		fmt.Fprintf(o.Out, "Deletion declined; nothing changed.\n")
		return OutcomeDeclined, nil
	}

	id, err := o.Runs.Begin(ctx, o.TargetDB, state.PhasePendingDelete, "delete issued")
	if err != nil {
		return OutcomeUnknown, err
	}

	fmt.Fprintf(o.Out, "Deleting %s\n", o.TargetDB)
	if err := o.Manager.Delete(ctx, o.TargetDB); err != nil {
		// A 403 during a long-running delete means the platform is
		// rejecting requests against the database while it goes away,
		// not that the delete failed; keep monitoring. Anything else
		// is fatal.
		if !mi.IsForbidden(err) {
			return OutcomeUnknown, err
		}
		fmt.Fprintf(o.Out, "Platform reports Forbidden; assuming deletion is in flight.\n")
	}

	return o.awaitDeleted(ctx, id)
}

func (o *Orchestrator) awaitDeleted(ctx context.Context, id string) (Outcome, error) {
	fmt.Fprintf(o.Out, "Waiting for %s to disappear (budget %v)\n", o.TargetDB, o.Cfg.DeleteWaitTimeout)
	err := poll.Until(ctx, poll.Config{Interval: o.Cfg.DeletePollInterval, Budget: o.Cfg.DeleteWaitTimeout},
		func(ctx context.Context) (bool, error) {
			exists, err := o.Manager.Exists(ctx, o.TargetDB)
			if err != nil {
				// The platform may reject lookups against a database
				// while it is being deleted; a Forbidden here means
				// "still going away", not a failure.
				if mi.IsForbidden(err) {
					return false, nil
				}
				return false, err
			}
			return !exists, nil
		})
	if err != nil {
		if errors.Is(err, poll.ErrBudgetExceeded) {
			fmt.Fprintf(o.Out, "✗ %s still exists after %v.\n", o.TargetDB, o.Cfg.DeleteWaitTimeout)
			return OutcomeDeletionTimeout, nil
		}
		return OutcomeUnknown, err
	}
	fmt.Fprintf(o.Out, "✓ Database deleted.\n")

	if err := o.Runs.Advance(ctx, id, state.PhaseDeleted, "deletion confirmed"); err != nil {
		return OutcomeUnknown, err
	}
	return o.cooldown(ctx, id)
}

// cooldown waits out the platform's storage-accounting lag after a delete
// so the capacity check that follows can be trusted.
func (o *Orchestrator) cooldown(ctx context.Context, id string) (Outcome, error) {
	fmt.Fprintf(o.Out, "Waiting %v for platform storage accounting to settle\n", o.Cfg.Cooldown)
	if err := o.Sleeper.Sleep(ctx, o.Cfg.Cooldown); err != nil {
		return OutcomeUnknown, err
	}
	if err := o.Runs.Advance(ctx, id, state.PhaseCooldownElapsed, "cooldown elapsed"); err != nil {
		return OutcomeUnknown, err
	}
	return o.checkCapacityAndRestore(ctx, id)
}

func (o *Orchestrator) checkCapacityAndRestore(ctx context.Context, id string) (Outcome, error) {
	total, err := o.Manager.TotalStorageMB(ctx)
	if err != nil {
		return OutcomeUnknown, err
	}
	used, err := o.Metrics.UsedStorageMB(ctx)
	if err != nil {
		return OutcomeUnknown, err
	}
	size, err := o.Sizer.DatabaseSizeMB(ctx, o.SourceDB)
	if err != nil {
		return OutcomeUnknown, err
	}

	available := total - used
	fmt.Fprintf(o.Out, "Target storage: %.0f MB total, %.0f MB used, %.0f MB available; source needs %.0f MB\n",
		total, used, available, size)

	if available < size {
		fmt.Fprintf(o.Out, "✗ Insufficient storage on the target instance. Free up %.0f MB or grow the instance, then re-run.\n",
			size-available)
		return OutcomeInsufficientStorage, nil
	}

	restorePoint := o.now().Add(-o.Cfg.RestoreLag)
	fmt.Fprintf(o.Out, "Submitting point-in-time restore of %s as of %s\n",
		o.SourceDB, restorePoint.UTC().Format(time.RFC3339))
	if err := o.Manager.SubmitRestore(ctx, o.SourceDB, o.TargetDB, restorePoint); err != nil {
		return OutcomeUnknown, err
	}
	if err := o.Runs.Advance(ctx, id, state.PhaseRestoring, "restore submitted"); err != nil {
		return OutcomeUnknown, err
	}

	return o.awaitOnline(ctx, id)
}

func (o *Orchestrator) awaitOnline(ctx context.Context, id string) (Outcome, error) {
	fmt.Fprintf(o.Out, "Polling %s until it is online (budget %v)\n", o.TargetDB, o.Cfg.PollBudget)
	err := poll.Until(ctx, poll.Config{Interval: o.Cfg.PollInterval, Budget: o.Cfg.PollBudget},
		func(ctx context.Context) (bool, error) {
			status, err := o.Manager.Status(ctx, o.TargetDB)
			if err != nil {
				// The database may not be visible yet; keep polling.
				status = mi.StatusUnknown
			}
			fmt.Fprintf(o.Out, "  status: %s\n", status)
			return status == mi.StatusOnline, nil
		})
	if err != nil {
		if errors.Is(err, poll.ErrBudgetExceeded) {
			fmt.Fprintf(o.Out, "Restore not online after %v; it may still be in flight. Check the status manually or re-run to keep polling.\n",
				o.Cfg.PollBudget)
			return OutcomeTimedOut, nil
		}
		return OutcomeUnknown, err
	}

	if err := o.Runs.Advance(ctx, id, state.PhaseOnline, "database online"); err != nil {
		return OutcomeUnknown, err
	}
	fmt.Fprintf(o.Out, "✓ Database %s is online.\n", o.TargetDB)
	return OutcomeOnline, nil
}
