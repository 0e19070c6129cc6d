// Package profile holds the typed behavior configuration of the survey agent and
// renders it into the instruction text handed to the conversational model.
package profile

import (
	"bytes"
	"embed"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed profiles/*
var profilesFS embed.FS

type Persona struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Profile parameterizes the agent without touching the instruction template.
type Profile struct {
	Persona          Persona  `yaml:"persona"`
	Language         string   `yaml:"language"`
	Greeting         string   `yaml:"greeting"`
	Tone             []string `yaml:"tone"`
	Constraints      []string `yaml:"constraints"`
	AnswerTool       string   `yaml:"answer-tool"`
	AnswerGuidelines []string `yaml:"answer-guidelines"`
}

// Default returns the embedded profile (Korean, "Agent Kim").
func Default() (*Profile, error) {
	b, err := profilesFS.ReadFile("profiles/default.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "read default profile")
	}
	return Parse(b)
}

func Parse(b []byte) (*Profile, error) {
	p := &Profile{}
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, errors.Wrap(err, "parse profile")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads a profile file; an empty path yields the embedded default.
func Load(path string) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read profile %s", path)
	}
	return Parse(b)
}

func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Persona.Name) == "" {
		return errors.New("profile: persona name is required")
	}
	if strings.TrimSpace(p.Language) == "" {
		return errors.New("profile: language is required")
	}
	if strings.TrimSpace(p.AnswerTool) == "" {
		return errors.New("profile: answer-tool is required")
	}
	return nil
}

type instructionData struct {
	*Profile
	Question string
}

var instructionsTmpl = template.Must(
	template.New("instructions.tmpl").
		Funcs(sprig.TxtFuncMap()).
		ParseFS(profilesFS, "profiles/instructions.tmpl"),
)

// Render produces the instruction text for one call. The question is inserted
// verbatim.
func (p *Profile) Render(question string) (string, error) {
	data := instructionData{Profile: p, Question: question}

	greeting, err := renderString("greeting", p.Greeting, data)
	if err != nil {
		return "", err
	}
	withGreeting := *p
	withGreeting.Greeting = greeting
	data.Profile = &withGreeting

	var buf bytes.Buffer
	if err := instructionsTmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "render instructions")
	}
	return strings.TrimSpace(buf.String()), nil
}

func renderString(name string, text string, data any) (string, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "parse %s template", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render %s", name)
	}
	return buf.String(), nil
}
