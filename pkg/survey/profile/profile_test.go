package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDefault_RenderContainsQuestionAndRules(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)
	require.Equal(t, "Agent Kim", p.Persona.Name)

	question := "커피와 차 중 무엇을 더 좋아하시나요?"
	text, err := p.Render(question)
	require.NoError(t, err)

	require.Contains(t, text, "brief phone survey in Korean")
	require.Contains(t, text, "'"+question+"'")
	require.Contains(t, text, `survey caller named "Agent Kim"`)
	require.Contains(t, text, "Don't ask any follow-up questions.")
	require.Contains(t, text, "use the `record_survey_answer` function")
	require.Contains(t, text, "unless you're sure that they've answered your question")
	require.Contains(t, text, "short keyword or phrase")
	require.NotContains(t, text, "{{")
}

func TestRender_QuestionIsVerbatim(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	question := "  {{ .Language }} & <b>raw</b>  "
	text, err := p.Render(question)
	require.NoError(t, err)
	require.Contains(t, text, "'"+question+"'")
}

func TestLoad_FileAndValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"persona:",
		"  name: Agent Lee",
		"language: English",
		"greeting: Say hi as {{ .Persona.Name | upper }}.",
		"constraints: [\"No small talk.\"]",
		"answer-tool: save_answer",
	}, "\n")), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	text, err := p.Render("Tea or coffee?")
	require.NoError(t, err)
	require.Contains(t, text, "Say hi as AGENT LEE.")
	require.Contains(t, text, "`save_answer`")
	require.Contains(t, text, "No small talk.")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("language: English\n"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	blank := filepath.Join(dir, "blank-tool.yaml")
	require.NoError(t, os.WriteFile(blank, []byte("persona: {name: Agent Lee}\nlanguage: English\n"), 0o644))
	_, err = Load(blank)
	require.Error(t, err)

	p, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "Agent Kim", p.Persona.Name)
}

func TestCheckBudget(t *testing.T) {
	n, err := CheckBudget("hello world", 0)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	_, err = CheckBudget(strings.Repeat("survey ", 50), 5)
	require.True(t, errors.Is(err, ErrInstructionsTooLong))
}

func TestRender_FixedRulesWithoutConstraints(t *testing.T) {
	p, err := Parse([]byte("persona: {name: Agent Lee}\nlanguage: Korean\nanswer-tool: record_survey_answer\n"))
	require.NoError(t, err)
	require.Empty(t, p.Constraints)
	require.Empty(t, p.AnswerGuidelines)

	text, err := p.Render("Tea or coffee?")
	require.NoError(t, err)
	require.Contains(t, text, "Don't ask any follow-up questions.")
	require.Contains(t, text, "reduce the answer to a short keyword or phrase")
	require.Contains(t, text, "`record_survey_answer`")
}

func TestDefault_RulesAppearOnce(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)
	text, err := p.Render("Tea or coffee?")
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(text, "follow-up"))
	require.Equal(t, 1, strings.Count(text, "short keyword or phrase"))
}
