package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/survey-caller/pkg/settings"
	"github.com/go-go-golems/survey-caller/pkg/survey"
	"github.com/go-go-golems/survey-caller/pkg/survey/profile"
	"github.com/spf13/cobra"
)

var tokenStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

type InstructionsCommand struct {
	*cmds.CommandDescription
	app *app
}

type InstructionsSettings struct {
	Question string `glazed:"question"`
}

func NewInstructionsCommand(a *app) (*InstructionsCommand, error) {
	return &InstructionsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"instructions",
			cmds.WithShort("Print the agent instructions rendered for a question"),
			cmds.WithFlags(
				fields.New(
					"question",
					fields.TypeString,
					fields.WithDefault(survey.DefaultQuestion),
					fields.WithHelp("Question to render"),
				),
			),
		),
		app: a,
	}, nil
}

func newInstructionsCobraCommand(a *app) (*cobra.Command, error) {
	c, err := NewInstructionsCommand(a)
	if err != nil {
		return nil, err
	}
	return cli.BuildCobraCommand(c, cli.WithCobraMiddlewaresFunc(getMiddlewares))
}

var _ cmds.WriterCommand = (*InstructionsCommand)(nil)

func (c *InstructionsCommand) RunIntoWriter(
	ctx context.Context,
	parsedLayers *values.Values,
	w io.Writer,
) error {
	s := &InstructionsSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	return writeInstructions(w, c.app.cfg.Agent, s.Question)
}

func writeInstructions(w io.Writer, agent settings.AgentSettings, question string) error {
	p, err := profile.Load(agent.Profile)
	if err != nil {
		return err
	}
	if err := survey.CheckProfile(p); err != nil {
		return err
	}
	text, err := p.Render(question)
	if err != nil {
		return err
	}
	n, err := profile.CheckBudget(text, agent.MaxInstructionTokens)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, text); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, tokenStyle.Render(fmt.Sprintf("%d tokens", n)))
	return err
}
