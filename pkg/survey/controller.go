// Package survey runs a single-question phone survey: it turns job metadata into a
// configured voice session and records the respondent's answer exactly once the
// agent decides it has one.
package survey

import (
	"context"
	"time"

	"github.com/go-go-golems/survey-caller/pkg/dataset"
	"github.com/go-go-golems/survey-caller/pkg/realtime"
	"github.com/go-go-golems/survey-caller/pkg/room"
	"github.com/go-go-golems/survey-caller/pkg/survey/profile"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type ControllerOptions struct {
	GracePeriod          time.Duration
	TeardownTimeout      time.Duration
	DoubleCommit         DoubleCommitPolicy
	MaxInstructionTokens int
	TurnDetection        realtime.TurnDetection
}

func DefaultControllerOptions() ControllerOptions {
	return ControllerOptions{
		GracePeriod:     DefaultGracePeriod,
		TeardownTimeout: DefaultTeardownTimeout,
		DoubleCommit:    OverwritePolicy,
		TurnDetection:   realtime.TurnDetection{Type: "server_vad"},
	}
}

// Controller starts one voice session per call.
type Controller struct {
	runtime realtime.Runtime
	store   dataset.Store
	rooms   room.Deleter
	profile *profile.Profile
	opts    ControllerOptions
}

// NewController wires the collaborators. rooms may be nil, in which case calls are
// not torn down after the answer is stored.
func NewController(rt realtime.Runtime, store dataset.Store, rooms room.Deleter, p *profile.Profile, opts ControllerOptions) (*Controller, error) {
	if rt == nil {
		return nil, errors.New("survey controller: realtime runtime is required")
	}
	if store == nil {
		return nil, errors.New("survey controller: dataset store is required")
	}
	if p == nil {
		var err error
		if p, err = profile.Default(); err != nil {
			return nil, err
		}
	}
	if err := CheckProfile(p); err != nil {
		return nil, err
	}
	return &Controller{runtime: rt, store: store, rooms: rooms, profile: p, opts: opts}, nil
}

// CheckProfile rejects profiles that point the model at a tool this package does
// not register.
func CheckProfile(p *profile.Profile) error {
	if p.AnswerTool != RecordAnswerToolName {
		return errors.Errorf("profile answer-tool %q is not registered, use %q", p.AnswerTool, RecordAnswerToolName)
	}
	return nil
}

// Call bundles everything built for one call.
type Call struct {
	Context CallContext
	Config  realtime.SessionConfig
	Handler *CommitHandler
	Tools   *Toolbox
}

// Prepare builds the session configuration and the commit handler for a call.
func (c *Controller) Prepare(ctx context.Context, cc CallContext, roomName string) (*Call, error) {
	instructions, err := c.profile.Render(cc.Question)
	if err != nil {
		return nil, err
	}
	n, err := profile.CheckBudget(instructions, c.opts.MaxInstructionTokens)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("instruction_tokens", n).Str("room", roomName).Msg("rendered agent instructions")

	handler := NewCommitHandler(cc, roomName, c.store, c.rooms,
		WithGracePeriod(c.opts.GracePeriod),
		WithTeardownTimeout(c.opts.TeardownTimeout),
		WithDoubleCommitPolicy(c.opts.DoubleCommit),
	)
	tb, err := NewToolbox(handler)
	if err != nil {
		return nil, err
	}
	specs, err := tb.Specs()
	if err != nil {
		return nil, err
	}

	return &Call{
		Context: cc,
		Handler: handler,
		Tools:   tb,
		Config: realtime.SessionConfig{
			Room:          roomName,
			Instructions:  instructions,
			Tools:         specs,
			Input:         realtime.InputOptions{NoiseCancellation: realtime.NoiseCancellationBVC},
			TurnDetection: c.opts.TurnDetection,
			Metadata: map[string]string{
				"phone_number": cc.PhoneNumber,
			},
		},
	}, nil
}

// Run handles one call job: connect, parse metadata, start the session and serve it
// until it ends. Connect and start failures are returned untouched so the worker
// supervising the job sees them.
func (c *Controller) Run(ctx context.Context, roomName string, metadata string) error {
	sess, err := c.runtime.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	logger := log.With().Str("component", "calling-agent").Str("room", roomName).Logger()
	logger.Info().Str("metadata", metadata).Msg("received metadata")

	cc, err := ParseMetadata(metadata)
	if err != nil {
		return err
	}
	logger.Info().
		Str("phone_number", cc.PhoneNumber).
		Int("row_index", cc.RowIndex).
		Str("question", cc.Question).
		Msg("parsed metadata")

	call, err := c.Prepare(ctx, cc, roomName)
	if err != nil {
		return err
	}
	if err := sess.Start(ctx, call.Config, call.Tools); err != nil {
		return err
	}
	logger.Info().Stringer("state", call.Handler.State()).Msg("call finished")
	return nil
}
