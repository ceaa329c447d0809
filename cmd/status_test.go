package cmd

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast/project"
)

func seedStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store, err := project.Open(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	store.UpdateProgress("deck-1", project.StageParsing, 1, 1, "parsing complete")
	store.SaveStageResult("deck-1", project.StageParsing, project.ResultCompleted, project.ParsePayload{TotalSlides: 1}, "")
	store.UpdateProgress("deck-2", project.StageRendering, 2, 3, "audio pass complete")
	store.SaveStageResult("deck-2", project.StageRendering, project.ResultFailed, nil, "boom")
	return dir
}

func runStatus(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"status"}, args...))
	require.NoError(t, root.Execute())
	return out.String()
}

func TestStatusCommand_Table(t *testing.T) {
	dir := seedStore(t)

	out := runStatus(t, "--dir", dir)
	assert.Contains(t, out, "deck-1")
	assert.Contains(t, out, "deck-2")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "1/4")
	assert.NotContains(t, out, ansiReset)
}

func TestStatusCommand_SingleProjectJSON(t *testing.T) {
	dir := seedStore(t)

	out := runStatus(t, "--dir", dir, "--json", "deck-2")
	var projects []project.Project
	require.NoError(t, json.Unmarshal([]byte(out), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, project.StatusFailed, projects[0].Status)
	assert.Equal(t, "boom", projects[0].Results[project.StageRendering].Error)
}

func TestStatusCommand_UnknownProject(t *testing.T) {
	dir := seedStore(t)

	out := runStatus(t, "--dir", dir, "--json", "missing")
	var projects []project.Project
	require.NoError(t, json.Unmarshal([]byte(out), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, project.StatusUnknown, projects[0].Status)
}

func TestRenderProjects_Empty(t *testing.T) {
	assert.Equal(t, "No projects.", renderProjects(nil, false))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "-", progressLabel(project.Project{}))
	assert.Equal(t, "-", updatedLabel(time.Time{}))
	assert.Equal(t, ansiGreen+"completed"+ansiReset, colorStatus(project.StatusCompleted, true))
	assert.Equal(t, "completed", colorStatus(project.StatusCompleted, false))
}
