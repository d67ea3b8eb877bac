package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mascril/internal/catalog"
)

func TestRunsMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, NewRunsCommand, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestRunsEmptyCatalogue(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, NewRunsCommand, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", out)
}

func TestRunsListsCompletedRuns(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "runs.db")
	cfgPath := writeConfig(t, tmpDir, simConfig+"data_dir: "+tmpDir+"\n")
	_, err := runWith(t, &RunOptions{Config: cfgPath, Sim: true, Database: dbPath})
	require.NoError(t, err)

	out, err := execute(t, NewRunsCommand, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "SCRIPT")
	assert.Contains(t, out, "dc2gates")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "4/4")

	out, err = execute(t, NewRunsCommand, "json", "--db", dbPath, "--limit", "1")
	require.NoError(t, err)
	var resp struct {
		Data []catalog.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, 4, resp.Data[0].Rows)
}
