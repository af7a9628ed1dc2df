package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtune/benchtune/internal/tunable"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMergesOverlaysInOrder(t *testing.T) {
	dir := t.TempDir()
	root := writeFile(t, dir, "root.yaml", "max_trials: 10\nstorage:\n  dsn: postgres://a\n")
	overlay1 := writeFile(t, dir, "o1.yaml", "max_trials: 20\nstorage:\n  pool_size: 5\n")
	overlay2 := writeFile(t, dir, "o2.yaml", "storage:\n  dsn: postgres://b\n")

	cfg, err := Load(root, overlay1, overlay2)
	require.NoError(t, err)

	assert.EqualValues(t, 20, cfg.Root["max_trials"])
	storage := cfg.Root["storage"].(map[string]interface{})
	assert.Equal(t, "postgres://b", storage["dsn"])
	assert.EqualValues(t, 5, storage["pool_size"])
}

func TestLoadToleratesMissingFiles(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Root)
}

func TestLoadExtractsSecretsAsOpaqueStrings(t *testing.T) {
	dir := t.TempDir()
	root := writeFile(t, dir, "root.yaml", "secrets:\n  api_key: abc123\n  db_password: hunter2\n")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "abc123", cfg.Secrets["api_key"])
	assert.Equal(t, "hunter2", cfg.Secrets["db_password"])
}

func TestDecodeUnmarshalsMergedTreeIntoTypedStruct(t *testing.T) {
	dir := t.TempDir()
	root := writeFile(t, dir, "root.yaml", "max_trials: 7\n")

	cfg, err := Load(root)
	require.NoError(t, err)

	var typed struct {
		MaxTrials int `json:"max_trials"`
	}
	require.NoError(t, cfg.Decode(&typed))
	assert.Equal(t, 7, typed.MaxTrials)
}

func testTunables(t *testing.T) *tunable.Groups {
	t.Helper()
	replicas, err := tunable.New(tunable.Tunable{
		Name: "replicas", Type: tunable.TypeInteger,
		Default: tunable.IntValue(3), Range: &tunable.Range{Lo: 1, Hi: 10},
	})
	require.NoError(t, err)
	mode, err := tunable.New(tunable.Tunable{
		Name: "mode", Type: tunable.TypeCategorical,
		Default: tunable.CatValue("a"), Values: []string{"a", "b"},
	})
	require.NoError(t, err)
	g, err := tunable.NewGroups(tunable.NewCovariantGroup("resources", 1, replicas, mode))
	require.NoError(t, err)
	return g
}

func TestTunableValuesResolvesAgainstExistingTunableTypes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "values.yaml", "replicas: 7\nmode: b\n")

	g := testTunables(t)
	values, err := TunableValues(path, g)
	require.NoError(t, err)

	require.NoError(t, g.Assign(values))
	replicas, _ := g.Lookup("replicas")
	assert.Equal(t, int64(7), replicas.Current.AsInt())
	mode, _ := g.Lookup("mode")
	assert.Equal(t, "b", mode.Current.AsCategorical())
}

func TestTunableValuesRejectsUnknownTunable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "values.yaml", "does_not_exist: 1\n")

	_, err := TunableValues(path, testTunables(t))
	assert.Error(t, err)
}
