package pitr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobelworks/dbops/internal/config"
	"github.com/frobelworks/dbops/internal/state"
)

type fakeManager struct {
	// existsResults are consumed one per call; the last value repeats.
	existsResults []bool
	// existsErrs are consumed one per Exists call before existsResults;
	// the last entry repeats. A nil entry means that call succeeds.
	existsErrs []error
	deleteErr  error
	deleted    []string

	submitSource string
	submitTarget string
	submitPoint  time.Time
	submitErr    error
	submitted    int

	// statusResults are consumed one per call; the last value repeats.
	statusResults []string

	totalMB float64
}

func (f *fakeManager) take(results *[]bool) bool {
	v := (*results)[0]
	if len(*results) > 1 {
		*results = (*results)[1:]
	}
	return v
}

func (f *fakeManager) Exists(ctx context.Context, name string) (bool, error) {
	if len(f.existsErrs) > 0 {
		err := f.existsErrs[0]
		if len(f.existsErrs) > 1 {
			f.existsErrs = f.existsErrs[1:]
		}
		if err != nil {
			return false, err
		}
	}
	return f.take(&f.existsResults), nil
}

func (f *fakeManager) Delete(ctx context.Context, name string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeManager) SubmitRestore(ctx context.Context, sourceDB, targetDB string, restorePoint time.Time) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted++
	f.submitSource = sourceDB
	f.submitTarget = targetDB
	f.submitPoint = restorePoint
	return nil
}

func (f *fakeManager) Status(ctx context.Context, name string) (string, error) {
	s := f.statusResults[0]
	if len(f.statusResults) > 1 {
		f.statusResults = f.statusResults[1:]
	}
	return s, nil
}

func (f *fakeManager) TotalStorageMB(ctx context.Context) (float64, error) {
	return f.totalMB, nil
}

type fakeMetrics struct{ usedMB float64 }

func (f *fakeMetrics) UsedStorageMB(ctx context.Context) (float64, error) {
	return f.usedMB, nil
}

type fakeSizer struct{ sizeMB float64 }

func (f *fakeSizer) DatabaseSizeMB(ctx context.Context, database string) (float64, error) {
	return f.sizeMB, nil
}

type fakePrompt struct {
	confirm bool
	asked   int
}

func (f *fakePrompt) ConfirmDelete(name string) (bool, error) {
	f.asked++
	return f.confirm, nil
}

type fakeRuns struct {
	seq  int
	runs []*state.Run
}

func (f *fakeRuns) Begin(ctx context.Context, targetDB string, phase state.Phase, detail string) (string, error) {
	f.seq++
	id := fmt.Sprintf("run-%d", f.seq)
	f.runs = append(f.runs, &state.Run{ID: id, TargetDB: targetDB, Phase: phase, Detail: detail})
	return id, nil
}

func (f *fakeRuns) Advance(ctx context.Context, id string, phase state.Phase, detail string) error {
	for _, r := range f.runs {
		if r.ID == id {
			r.Phase = phase
			r.Detail = detail
			return nil
		}
	}
	return state.ErrNoRun
}

func (f *fakeRuns) Current(ctx context.Context, targetDB string) (state.Run, error) {
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].TargetDB == targetDB && !f.runs[i].Phase.Terminal() {
			return *f.runs[i], nil
		}
	}
	return state.Run{}, state.ErrNoRun
}

type fakeSleeper struct{ slept []time.Duration }

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	return nil
}

func testConfig() config.PITRConfig {
	return config.PITRConfig{
		DeleteWaitTimeout:  100 * time.Millisecond,
		DeletePollInterval: 5 * time.Millisecond,
		Cooldown:           3 * time.Minute,
		RestoreLag:         15 * time.Minute,
		PollInterval:       5 * time.Millisecond,
		PollBudget:         100 * time.Millisecond,
	}
}

func newOrchestrator(mgr *fakeManager, prompt *fakePrompt) (*Orchestrator, *fakeRuns, *fakeSleeper) {
	runs := &fakeRuns{}
	sleeper := &fakeSleeper{}
	o := &Orchestrator{
		Manager:  mgr,
		Metrics:  &fakeMetrics{usedMB: 10000},
		Sizer:    &fakeSizer{sizeMB: 5000},
		Prompt:   prompt,
		Runs:     runs,
		Sleeper:  sleeper,
		Cfg:      testConfig(),
		SourceDB: "frobelworkscheduler",
		TargetDB: "frobelworkscheduler",
		Now: func() time.Time {
			return time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
		},
		Out: &bytes.Buffer{},
	}
	mgr.totalMB = 32768
	return o, runs, sleeper
}

func TestFreshRunNoExistingDatabase(t *testing.T) {
	mgr := &fakeManager{
		existsResults: []bool{false},
		statusResults: []string{"Creating", "Online"},
	}
	prompt := &fakePrompt{}
	o, runs, sleeper := newOrchestrator(mgr, prompt)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOnline, outcome)

	assert.Zero(t, prompt.asked, "no existing database, no prompt")
	assert.Empty(t, mgr.deleted)
	assert.Empty(t, sleeper.slept, "no deletion, no cooldown")

	assert.Equal(t, "frobelworkscheduler", mgr.submitSource)
	assert.Equal(t, "frobelworkscheduler", mgr.submitTarget)
	assert.Equal(t, time.Date(2025, 7, 4, 11, 45, 0, 0, time.UTC), mgr.submitPoint,
		"restore point is now minus the restore lag")

	require.Len(t, runs.runs, 1)
	assert.Equal(t, state.PhaseOnline, runs.runs[0].Phase)
}

func TestDeclinedDeletionChangesNothing(t *testing.T) {
	mgr := &fakeManager{existsResults: []bool{true}}
	prompt := &fakePrompt{confirm: false}
	o, runs, _ := newOrchestrator(mgr, prompt)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, outcome)
	assert.Equal(t, 1, outcome.ExitCode())

	assert.Empty(t, mgr.deleted)
	assert.Zero(t, mgr.submitted)
	assert.Empty(t, runs.runs, "a declined run leaves no state behind")
}

func TestDeleteThenRestore(t *testing.T) {
	mgr := &fakeManager{
		// Exists: initial check true, then the deletion wait sees it
		// twice more before it disappears.
		existsResults: []bool{true, true, true, false},
		statusResults: []string{"Unknown", "Restoring", "Online"},
	}
	prompt := &fakePrompt{confirm: true}
	o, runs, sleeper := newOrchestrator(mgr, prompt)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOnline, outcome)

	assert.Equal(t, []string{"frobelworkscheduler"}, mgr.deleted)
	assert.Equal(t, []time.Duration{3 * time.Minute}, sleeper.slept)
	assert.Equal(t, 1, mgr.submitted)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, state.PhaseOnline, runs.runs[0].Phase)
}

func TestForbiddenDuringDeleteMeansInFlight(t *testing.T) {
	mgr := &fakeManager{
		existsResults: []bool{true, true, false},
		deleteErr:     &azcore.ResponseError{StatusCode: http.StatusForbidden},
		statusResults: []string{"Online"},
	}
	prompt := &fakePrompt{confirm: true}
	o, _, _ := newOrchestrator(mgr, prompt)
	out := &bytes.Buffer{}
	o.Out = out

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOnline, outcome)
	assert.Contains(t, out.String(), "assuming deletion is in flight")
}

func TestForbiddenDuringDeletionWaitKeepsPolling(t *testing.T) {
	forbidden := &azcore.ResponseError{StatusCode: http.StatusForbidden}
	mgr := &fakeManager{
		// The initial check succeeds; the next two polls are rejected while
		// the delete runs, then the database is reported gone.
		existsErrs:    []error{nil, forbidden, forbidden, nil},
		existsResults: []bool{true, false},
		deleteErr:     forbidden,
		statusResults: []string{"Online"},
	}
	prompt := &fakePrompt{confirm: true}
	o, _, _ := newOrchestrator(mgr, prompt)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOnline, outcome)
	assert.Equal(t, 1, mgr.submitted)
}

func TestForbiddenThroughoutDeletionWaitTimesOut(t *testing.T) {
	forbidden := &azcore.ResponseError{StatusCode: http.StatusForbidden}
	mgr := &fakeManager{
		// Every lookup after the initial check is rejected until the
		// deletion budget runs out.
		existsErrs:    []error{nil, forbidden},
		existsResults: []bool{true},
		deleteErr:     forbidden,
	}
	prompt := &fakePrompt{confirm: true}
	o, runs, _ := newOrchestrator(mgr, prompt)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err, "a rejected lookup during deletion is not fatal")
	assert.Equal(t, OutcomeDeletionTimeout, outcome)
	assert.Zero(t, mgr.submitted)
	require.Len(t, runs.runs, 1)
	assert.Equal(t, state.PhasePendingDelete, runs.runs[0].Phase)
}

func TestUnexpectedExistsErrorDuringDeletionWaitIsFatal(t *testing.T) {
	boom := errors.New("instance unreachable")
	mgr := &fakeManager{
		existsErrs:    []error{nil, boom},
		existsResults: []bool{true},
	}
	prompt := &fakePrompt{confirm: true}
	o, _, _ := newOrchestrator(mgr, prompt)

	outcome, err := o.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OutcomeUnknown, outcome)
}

func TestUnexpectedDeleteErrorIsFatal(t *testing.T) {
	boom := errors.New("conflict")
	mgr := &fakeManager{
		existsResults: []bool{true},
		deleteErr:     boom,
	}
	prompt := &fakePrompt{confirm: true}
	o, _, _ := newOrchestrator(mgr, prompt)

	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, mgr.submitted)
}

func TestDeletionTimeout(t *testing.T) {
	mgr := &fakeManager{existsResults: []bool{true}}
	prompt := &fakePrompt{confirm: true}
	o, runs, _ := newOrchestrator(mgr, prompt)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeletionTimeout, outcome)
	assert.Equal(t, 1, outcome.ExitCode())
	assert.Zero(t, mgr.submitted)

	// The run stays in PendingDelete, ready to resume the wait.
	require.Len(t, runs.runs, 1)
	assert.Equal(t, state.PhasePendingDelete, runs.runs[0].Phase)
}

func TestInsufficientStorageAbortsBeforeSubmit(t *testing.T) {
	mgr := &fakeManager{existsResults: []bool{false}}
	prompt := &fakePrompt{}
	o, runs, _ := newOrchestrator(mgr, prompt)
	o.Sizer = &fakeSizer{sizeMB: 30000} // 32768 total - 10000 used < 30000

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientStorage, outcome)
	assert.Zero(t, mgr.submitted, "no restore may be submitted")

	// Re-invocation under the same condition aborts the same way: the run
	// resumes at the capacity check and never partially starts a restore.
	mgr.existsResults = []bool{false}
	outcome, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientStorage, outcome)
	assert.Zero(t, mgr.submitted)
	require.Len(t, runs.runs, 1)
	assert.Equal(t, state.PhaseCooldownElapsed, runs.runs[0].Phase)
}

func TestPollTimeoutIsInformationalAndResumable(t *testing.T) {
	mgr := &fakeManager{
		existsResults: []bool{false},
		statusResults: []string{"Restoring"},
	}
	prompt := &fakePrompt{}
	o, runs, _ := newOrchestrator(mgr, prompt)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.Equal(t, 0, outcome.ExitCode(), "a status timeout is not a failure")
	require.Len(t, runs.runs, 1)
	assert.Equal(t, state.PhaseRestoring, runs.runs[0].Phase)

	// A later invocation resumes polling and observes the flip to Online.
	mgr.statusResults = []string{"Restoring", "Online"}
	outcome, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOnline, outcome)
	assert.Equal(t, 1, mgr.submitted, "resume must not submit a second restore")
	assert.Equal(t, state.PhaseOnline, runs.runs[0].Phase)
}

func TestOutcomeStrings(t *testing.T) {
	assert.Equal(t, OutcomeUnknown, Outcome(0), "the zero value must not read as a planned ending")
	assert.Equal(t, "Unknown", OutcomeUnknown.String())
	assert.Equal(t, 1, OutcomeUnknown.ExitCode())
	assert.Equal(t, "Completed-Online", OutcomeOnline.String())
	assert.Equal(t, "Completed-TimedOut-StatusUnknown", OutcomeTimedOut.String())
	assert.Equal(t, "Aborted-UserDeclined", OutcomeDeclined.String())
	assert.Equal(t, "Aborted-InsufficientStorage", OutcomeInsufficientStorage.String())
	assert.Equal(t, "Aborted-DeletionTimeout", OutcomeDeletionTimeout.String())
}
