package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd(t *testing.T) {
	t.Run("Should register the pipeline commands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range RootCmd().Commands() {
			names[c.Name()] = true
		}
		assert.True(t, names["ingest"])
		assert.True(t, names["query"])
		assert.True(t, names["serve"])
	})

	t.Run("Should reject extra ingest arguments", func(t *testing.T) {
		root := RootCmd()
		root.SetArgs([]string{"ingest", "a.txt", "b.txt"})
		root.SetOut(new(nopWriter))
		root.SetErr(new(nopWriter))
		require.Error(t, root.Execute())
	})

	t.Run("Should fail before bootstrapping on an invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("[query]\ntop_k = 0\n"), 0o600))
		t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
		t.Setenv("CONFIG_FILE", "")

		root := RootCmd()
		root.SetArgs([]string{"--config", path, "query"})
		root.SetOut(new(nopWriter))
		root.SetErr(new(nopWriter))
		err := root.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load config failed")
		assert.Equal(t, path, os.Getenv("CONFIG_FILE"))
	})
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
