package templates_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottpeterman/wirlwind/pkg/telemetry/templates"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/trace"
)

// layout builds a local override root and a system template tree.
func layout(t *testing.T, localFiles, systemFiles []string) (string, string) {
	t.Helper()
	localRoot := t.TempDir()
	systemDir := t.TempDir()

	for _, name := range localFiles {
		path := filepath.Join(localRoot, "textfsm", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("Value X (.*)\n\nStart\n  ^${X}\n"), 0o644))
	}
	for _, name := range systemFiles {
		path := filepath.Join(systemDir, name)
		require.NoError(t, os.WriteFile(path, []byte("Value Y (.*)\n\nStart\n  ^${Y}\n"), 0o644))
	}
	return localRoot, systemDir
}

// A local override with the same filename shadows the system copy, and the
// trace records which tier satisfied the lookup.
func TestResolveLocalShadowsSystem(t *testing.T) {
	localRoot, systemDir := layout(t, []string{"foo.textfsm"}, []string{"foo.textfsm"})
	r := templates.NewResolver(localRoot, systemDir, nil)

	tr := trace.New("cpu", "cisco_ios", time.Now())
	res, err := r.Resolve("textfsm", "foo.textfsm", tr)
	require.NoError(t, err)

	assert.Equal(t, trace.TierLocal, res.Tier)
	assert.Contains(t, res.Path, localRoot)

	require.NotEmpty(t, tr.Steps)
	step := tr.Steps[len(tr.Steps)-1]
	assert.Equal(t, "resolve", step.Kind)
	assert.Equal(t, trace.TierLocal, step.ResolvedTier)
	assert.True(t, step.Found)
}

func TestResolveFallsBackToSystem(t *testing.T) {
	localRoot, systemDir := layout(t, nil, []string{"bar.textfsm"})
	r := templates.NewResolver(localRoot, systemDir, nil)

	res, err := r.Resolve("textfsm", "bar.textfsm", nil)
	require.NoError(t, err)
	assert.Equal(t, trace.TierSystem, res.Tier)
	assert.Contains(t, res.Path, systemDir)
}

func TestResolveSearchesSystemSubdirectories(t *testing.T) {
	localRoot := t.TempDir()
	systemDir := t.TempDir()
	nested := filepath.Join(systemDir, "vendor", "cisco")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "deep.textfsm"), []byte("x"), 0o644))

	r := templates.NewResolver(localRoot, systemDir, nil)
	res, err := r.Resolve("textfsm", "deep.textfsm", nil)
	require.NoError(t, err)
	assert.Equal(t, trace.TierSystem, res.Tier)
}

func TestResolveNotFoundNamesBothTiers(t *testing.T) {
	localRoot, systemDir := layout(t, nil, nil)
	r := templates.NewResolver(localRoot, systemDir, nil)

	tr := trace.New("cpu", "cisco_ios", time.Now())
	_, err := r.Resolve("textfsm", "nope.textfsm", tr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, templates.ErrTemplateNotFound))

	var nf *templates.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Len(t, nf.Searched, 2)

	step := tr.Steps[len(tr.Steps)-1]
	assert.Equal(t, trace.TierNone, step.ResolvedTier)
	assert.False(t, step.Found)
}

func TestResolveCachesResult(t *testing.T) {
	localRoot, systemDir := layout(t, []string{"foo.textfsm"}, nil)
	r := templates.NewResolver(localRoot, systemDir, nil)

	first, err := r.Resolve("textfsm", "foo.textfsm", nil)
	require.NoError(t, err)

	// Delete the file: a cached resolution still answers. Reloads require
	// restart by design.
	require.NoError(t, os.Remove(first.Path))
	second, err := r.Resolve("textfsm", "foo.textfsm", nil)
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path)
}
