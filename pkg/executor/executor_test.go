// Test Type: Unit Test
// Description: Tests for the executor - materialization, idempotence,
// cancellation and failure isolation

package executor_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memlab-tools/stager/pkg/checksum"
	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/executor"
	"github.com/memlab-tools/stager/pkg/filesystem"
	"github.com/memlab-tools/stager/pkg/manifest"
	"github.com/memlab-tools/stager/pkg/planner"
	"github.com/memlab-tools/stager/pkg/validator"
)

var digester = checksum.MustNew("blake3")

func validate(t *testing.T, fsys filesystem.FS, items ...planner.Item) *validator.ValidatedPlan {
	t.Helper()
	v := validator.New(fsys, digester, validator.Options{Workers: 2})
	vp, err := v.Validate(context.Background(), &planner.Plan{Items: items})
	require.NoError(t, err)
	return vp
}

func newExecutor(fsys filesystem.FS, opts executor.Options) *executor.Executor {
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	return executor.New(fsys, digester, opts)
}

func fileItem(name, origin, dest string, required, digest bool) planner.Item {
	return planner.Item{
		EntryName:    name,
		Kind:         manifest.File,
		Origin:       origin,
		Destination:  dest,
		Policy:       manifest.Policy{Required: required, ChecksumContents: digest},
		MatchedCount: 1,
	}
}

func TestExecuteCopiesFile(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/docs/jacksheet.txt", []byte("1 LA1\n2 LA2\n"), 0644))

	vp := validate(t, fsys, fileItem("jacksheet", "/data/docs/jacksheet.txt", "/db/docs/jacksheet.txt", true, true))

	results, err := newExecutor(fsys, executor.Options{}).Execute(context.Background(), vp)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, executor.StatusMaterialized, results[0].Status)

	copied, err := fsys.ReadFile("/db/docs/jacksheet.txt")
	require.NoError(t, err)
	assert.Equal(t, "1 LA1\n2 LA2\n", string(copied))

	// Digest recorded for the idempotence check of future runs.
	assert.NotEmpty(t, checksum.ReadSidecar(fsys, "/db/docs/jacksheet.txt", digester))
}

func TestExecuteIsIdempotent(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/docs/jacksheet.txt", []byte("1 LA1\n"), 0644))

	item := fileItem("jacksheet", "/data/docs/jacksheet.txt", "/db/docs/jacksheet.txt", true, true)
	exec := newExecutor(fsys, executor.Options{})

	first, err := exec.Execute(context.Background(), validate(t, fsys, item))
	require.NoError(t, err)
	assert.Equal(t, executor.StatusMaterialized, first[0].Status)

	second, err := exec.Execute(context.Background(), validate(t, fsys, item))
	require.NoError(t, err)
	assert.Equal(t, executor.StatusNoop, second[0].Status,
		"re-running an executed plan against unchanged origins must be a no-op")
}

func TestExecuteReMaterializesChangedOrigin(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/docs/jacksheet.txt", []byte("1 LA1\n"), 0644))

	item := fileItem("jacksheet", "/data/docs/jacksheet.txt", "/db/docs/jacksheet.txt", true, true)
	exec := newExecutor(fsys, executor.Options{})

	_, err := exec.Execute(context.Background(), validate(t, fsys, item))
	require.NoError(t, err)

	require.NoError(t, fsys.WriteFile("/data/docs/jacksheet.txt", []byte("1 LA1\n2 LA2\n"), 0644))

	results, err := exec.Execute(context.Background(), validate(t, fsys, item))
	require.NoError(t, err)
	assert.Equal(t, executor.StatusMaterialized, results[0].Status)

	copied, err := fsys.ReadFile("/db/docs/jacksheet.txt")
	require.NoError(t, err)
	assert.Equal(t, "1 LA1\n2 LA2\n", string(copied))
}

func TestExecuteCarriesValidationOutcomes(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/leads.txt", []byte("LA1\n"), 0644))

	vp := validate(t, fsys,
		fileItem("jacksheet", "/data/jacksheet.txt", "/db/jacksheet.txt", true, false),
		fileItem("area", "/data/area.txt", "/db/area.txt", false, false),
		fileItem("leads", "/data/leads.txt", "/db/leads.txt", true, false),
	)

	results, err := newExecutor(fsys, executor.Options{}).Execute(context.Background(), vp)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, executor.StatusFailed, results[0].Status, "required-missing surfaces as failure")
	assert.Equal(t, executor.StatusSkipped, results[1].Status, "optional-missing is never a failure")
	assert.Equal(t, executor.StatusMaterialized, results[2].Status, "independent items still run")
}

func TestExecuteDryRun(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/jacksheet.txt", []byte("1 LA1\n"), 0644))

	vp := validate(t, fsys, fileItem("jacksheet", "/data/jacksheet.txt", "/db/jacksheet.txt", true, false))

	results, err := newExecutor(fsys, executor.Options{DryRun: true}).Execute(context.Background(), vp)
	require.NoError(t, err)
	assert.Equal(t, executor.StatusSkipped, results[0].Status)

	_, err = fsys.Stat("/db/jacksheet.txt")
	assert.Error(t, err, "dry run must not touch the destination")
}

func TestExecuteLinkEntry(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/imaging/mri", []byte("volume"), 0644))

	item := planner.Item{
		EntryName:    "native_mri",
		Kind:         manifest.Link,
		Origin:       "/data/imaging/mri",
		Destination:  "/db/imaging/mri",
		Policy:       manifest.Policy{Required: true},
		MatchedCount: 1,
	}
	exec := newExecutor(fsys, executor.Options{})

	results, err := exec.Execute(context.Background(), validate(t, fsys, item))
	require.NoError(t, err)
	assert.Equal(t, executor.StatusMaterialized, results[0].Status)

	target, err := fsys.Readlink("/db/imaging/mri")
	require.NoError(t, err)
	assert.Equal(t, "/data/imaging/mri", target)

	// Second run finds the link in place.
	results, err = exec.Execute(context.Background(), validate(t, fsys, item))
	require.NoError(t, err)
	assert.Equal(t, executor.StatusNoop, results[0].Status)
}

func TestExecuteDirectoryCopy(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/label/lh.aparc.annot", []byte("a"), 0644))
	require.NoError(t, fsys.WriteFile("/data/label/sub/rh.aparc.annot", []byte("b"), 0644))

	item := planner.Item{
		EntryName:    "labels",
		Kind:         manifest.Directory,
		Origin:       "/data/label",
		Destination:  "/db/label",
		Policy:       manifest.Policy{Required: true},
		MatchedCount: 1,
	}

	results, err := newExecutor(fsys, executor.Options{}).Execute(context.Background(), validate(t, fsys, item))
	require.NoError(t, err)
	assert.Equal(t, executor.StatusMaterialized, results[0].Status)

	got, err := fsys.ReadFile("/db/label/sub/rh.aparc.annot")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

// corruptingFS flips the first byte of everything written through Create,
// simulating a transfer that lands with the wrong content.
type corruptingFS struct {
	filesystem.FS
}

func (c corruptingFS) Create(name string) (io.WriteCloser, error) {
	w, err := c.FS.Create(name)
	if err != nil {
		return nil, err
	}
	return &corruptingWriter{WriteCloser: w}, nil
}

type corruptingWriter struct {
	io.WriteCloser
	wrote bool
}

func (w *corruptingWriter) Write(p []byte) (int, error) {
	if !w.wrote && len(p) > 0 {
		mangled := append([]byte(nil), p...)
		mangled[0] ^= 0xff
		w.wrote = true
		return w.WriteCloser.Write(mangled)
	}
	return w.WriteCloser.Write(p)
}

func TestExecuteChecksumMismatchFails(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/docs/jacksheet.txt", []byte("1 LA1\n"), 0644))

	item := fileItem("jacksheet", "/data/docs/jacksheet.txt", "/db/docs/jacksheet.txt", true, true)
	vp := validate(t, fsys, item)

	results, err := newExecutor(corruptingFS{fsys}, executor.Options{Retries: 1}).
		Execute(context.Background(), vp)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, executor.StatusFailed, results[0].Status)
	assert.True(t, errors.IsErrorCode(results[0].Err, errors.ErrChecksumMismatch))
	assert.Equal(t, 2, results[0].Attempts, "a corrupted copy is retried before failing")

	// The recorded digest must never vouch for corrupt content.
	assert.Empty(t, checksum.ReadSidecar(fsys, "/db/docs/jacksheet.txt", digester))
}

func TestExecuteRefusesAuditPlans(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	vp := &validator.ValidatedPlan{Plan: &planner.Plan{AllGroups: true}}

	_, err := newExecutor(fsys, executor.Options{}).Execute(context.Background(), vp)
	assert.Error(t, err)
}

// failingFS refuses every write, forcing the retry path.
type failingFS struct {
	filesystem.FS
}

func (f failingFS) Create(name string) (io.WriteCloser, error) {
	return nil, fmt.Errorf("create %s: injected failure", name)
}

func TestExecuteCancellationInterruptsBackoff(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/jacksheet.txt", []byte("1 LA1\n"), 0644))

	vp := validate(t, fsys, fileItem("jacksheet", "/data/jacksheet.txt", "/db/jacksheet.txt", true, false))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	results, err := newExecutor(failingFS{fsys}, executor.Options{Retries: 5}).
		Execute(ctx, vp)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, executor.StatusAborted, results[0].Status)
	assert.LessOrEqual(t, results[0].Attempts, 2,
		"cancellation during backoff must stop the retry loop")
}

func TestExecuteCanceledContext(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/data/jacksheet.txt", []byte("1 LA1\n"), 0644))

	vp := validate(t, fsys, fileItem("jacksheet", "/data/jacksheet.txt", "/db/jacksheet.txt", true, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newExecutor(fsys, executor.Options{}).Execute(ctx, vp)
	require.NoError(t, err)
	assert.Equal(t, executor.StatusAborted, results[0].Status)
}
