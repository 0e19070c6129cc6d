package cmds

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/survey-caller/pkg/settings"
	"github.com/go-go-golems/survey-caller/pkg/survey"
	"github.com/stretchr/testify/require"
)

func TestWriteInstructions_DefaultProfile(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeInstructions(&out, settings.AgentSettings{}, survey.DefaultQuestion))

	require.Contains(t, out.String(), survey.DefaultQuestion)
	require.Contains(t, out.String(), "Don't ask any follow-up questions.")
	require.Contains(t, out.String(), "tokens")
}

func TestWriteInstructions_RejectsUnknownAnswerTool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("persona: {name: Agent Lee}\nlanguage: Korean\nanswer-tool: save_answer\n"), 0o644))

	var out bytes.Buffer
	err := writeInstructions(&out, settings.AgentSettings{Profile: path}, survey.DefaultQuestion)
	require.Error(t, err)
	require.Empty(t, out.String())
}

func TestWriteInstructions_Budget(t *testing.T) {
	var out bytes.Buffer
	err := writeInstructions(&out, settings.AgentSettings{MaxInstructionTokens: 5}, survey.DefaultQuestion)
	require.Error(t, err)
}

func TestDispatchRequiresRedis(t *testing.T) {
	cmd := newDispatchCommand(&app{cfg: &settings.Config{}})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--row", "2"})
	require.Error(t, cmd.Execute())
}
