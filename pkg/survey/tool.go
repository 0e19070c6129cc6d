package survey

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/geppetto/pkg/inference/tools"
	"github.com/go-go-golems/survey-caller/pkg/realtime"
	"github.com/pkg/errors"
)

const RecordAnswerToolName = "record_survey_answer"

const recordAnswerDescription = `Save the survey answer to the dataset and mark the survey status as completed.

The answer should be short, direct, and without filler phrases.
Avoid full sentences or politeness markers like "저는", "요", or "아마도".

Examples:
- "저는 바이든이요" → "바이든"
- "기분이 좋아요" → "좋아요"
- "아마 커피요" → "커피"`

type RecordAnswerRequest struct {
	Answer string `json:"answer" jsonschema:"required,description=The cleaned user answer from speech (e.g. a keyword or short phrase)"`
}

type RecordAnswerResponse struct {
	Message  string `json:"message"`
	Recorded bool   `json:"recorded"`
}

// Toolbox exposes the survey tools to the model. Definitions live in a geppetto
// registry so their JSON schema comes from the request structs; calls coming from
// the voice gateway are decoded and dispatched here.
type Toolbox struct {
	registry *tools.InMemoryToolRegistry
	handler  *CommitHandler
}

var _ realtime.ToolInvoker = &Toolbox{}

func NewToolbox(handler *CommitHandler) (*Toolbox, error) {
	tb := &Toolbox{
		registry: tools.NewInMemoryToolRegistry(),
		handler:  handler,
	}
	def, err := tools.NewToolFromFunc(
		RecordAnswerToolName,
		recordAnswerDescription,
		tb.recordAnswer,
	)
	if err != nil {
		return nil, errors.Wrap(err, "record_survey_answer tool")
	}
	if err := tb.registry.RegisterTool(RecordAnswerToolName, *def); err != nil {
		return nil, errors.Wrap(err, "register record_survey_answer tool")
	}
	return tb, nil
}

func (tb *Toolbox) Registry() *tools.InMemoryToolRegistry { return tb.registry }

// Specs returns the tool definitions in the gateway's wire format.
func (tb *Toolbox) Specs() ([]realtime.ToolSpec, error) {
	var specs []realtime.ToolSpec
	for _, td := range tb.registry.ListTools() {
		params, err := json.Marshal(td.Parameters)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s parameters", td.Name)
		}
		specs = append(specs, realtime.ToolSpec{
			Name:        td.Name,
			Description: td.Description,
			Parameters:  params,
		})
	}
	return specs, nil
}

func (tb *Toolbox) InvokeTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	switch name {
	case RecordAnswerToolName:
		req, err := decodeRecordAnswer(arguments)
		if err != nil {
			return "", err
		}
		res, err := tb.recordAnswer(ctx, req)
		return res.Message, err
	}
	return "", errors.Errorf("unknown tool %q", name)
}

func (tb *Toolbox) recordAnswer(ctx context.Context, req RecordAnswerRequest) (RecordAnswerResponse, error) {
	res, err := tb.handler.Commit(ctx, req.Answer)
	return RecordAnswerResponse{Message: res.Message, Recorded: res.Recorded}, err
}

// decodeRecordAnswer applies the same checks to model-supplied arguments as to any
// other caller: a JSON object with a non-blank string "answer" and nothing else.
func decodeRecordAnswer(arguments json.RawMessage) (RecordAnswerRequest, error) {
	var req RecordAnswerRequest
	if len(bytes.TrimSpace(arguments)) == 0 {
		return req, errors.New("record_survey_answer: missing arguments")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(arguments, &raw); err != nil {
		return req, errors.Wrap(err, "record_survey_answer: arguments must be an object")
	}
	if _, ok := raw["answer"]; !ok {
		return req, errors.New("record_survey_answer: answer is required")
	}
	dec := json.NewDecoder(bytes.NewReader(arguments))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, errors.Wrap(err, "record_survey_answer: invalid arguments")
	}
	if strings.TrimSpace(req.Answer) == "" {
		return req, errors.New("record_survey_answer: answer is empty")
	}
	return req, nil
}
