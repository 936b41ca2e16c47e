package jsonstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "state", "namespaces.json"))
}

func TestStore_Registrations_Empty(t *testing.T) {
	s := newTestStore(t)

	regs, err := s.Registrations()

	require.NoError(t, err)
	assert.Empty(t, regs)
	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err), "reading does not create the file")
}

func TestStore_RememberAndForget(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Remember("web", "/work/web/magicbin.toml"))
	require.NoError(t, s.Remember("api", "/work/api/magicbin.yaml"))

	regs, err := s.Registrations()
	require.NoError(t, err)
	assert.Equal(t, []domain.Registration{
		{Namespace: "api", ConfigPath: "/work/api/magicbin.yaml"},
		{Namespace: "web", ConfigPath: "/work/web/magicbin.toml"},
	}, regs)

	// A namespace moved to another file replaces its record.
	require.NoError(t, s.Remember("web", "/work/site/magicbin.toml"))
	require.NoError(t, s.Forget("api"))
	require.NoError(t, s.Forget("unknown"))

	regs, err = s.Registrations()
	require.NoError(t, err)
	assert.Equal(t, []domain.Registration{{Namespace: "web", ConfigPath: "/work/site/magicbin.toml"}}, regs)
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "namespaces.json")
	require.NoError(t, New(path).Remember("web", "/work/web/magicbin.toml"))

	regs, err := New(path).Registrations()

	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "web", regs[0].Namespace)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "namespaces.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := New(path).Registrations()

	assert.ErrorContains(t, err, "parse registry")
}
