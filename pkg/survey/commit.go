package survey

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/survey-caller/pkg/dataset"
	"github.com/go-go-golems/survey-caller/pkg/room"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the position of a call in the answer commit protocol.
type State int

const (
	StateAwaitingAnswer State = iota
	StateCommitting
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateCommitting:
		return "committing"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DoubleCommitPolicy decides what a commit does once the call already recorded an answer.
type DoubleCommitPolicy string

const (
	// OverwritePolicy writes the new answer over the previous one.
	OverwritePolicy DoubleCommitPolicy = "overwrite"
	// RejectPolicy keeps the first answer and performs no write.
	RejectPolicy DoubleCommitPolicy = "reject"
)

func ParseDoubleCommitPolicy(s string) (DoubleCommitPolicy, error) {
	switch DoubleCommitPolicy(s) {
	case "", OverwritePolicy:
		return OverwritePolicy, nil
	case RejectPolicy:
		return RejectPolicy, nil
	}
	return "", errors.Errorf("unknown double-commit policy %q", s)
}

// Messages returned to the model as tool output.
const (
	MessageCompleted       = "[Survey complete. Thank you!]"
	MessageCommitFailed    = "[Error] Could not update survey data."
	MessageAlreadyRecorded = "[Survey already recorded.]"
)

const (
	DefaultGracePeriod     = 3 * time.Second
	DefaultTeardownTimeout = 10 * time.Second
)

type CommitResult struct {
	Message  string
	Recorded bool
}

// CommitHandler records the answer of one call and then closes the call's room.
// Commits are serialized; the dataset write always finishes before the grace
// period and the teardown request start.
type CommitHandler struct {
	call     CallContext
	roomName string
	store    dataset.Store
	rooms    room.Deleter

	gracePeriod     time.Duration
	teardownTimeout time.Duration
	policy          DoubleCommitPolicy

	mu        sync.Mutex
	state     State
	stateMu   sync.RWMutex
	done      chan struct{}
	closeDone sync.Once
	logger    zerolog.Logger
}

type CommitHandlerOption func(*CommitHandler)

func WithGracePeriod(d time.Duration) CommitHandlerOption {
	return func(h *CommitHandler) { h.gracePeriod = d }
}

func WithTeardownTimeout(d time.Duration) CommitHandlerOption {
	return func(h *CommitHandler) { h.teardownTimeout = d }
}

func WithDoubleCommitPolicy(p DoubleCommitPolicy) CommitHandlerOption {
	return func(h *CommitHandler) { h.policy = p }
}

func NewCommitHandler(call CallContext, roomName string, store dataset.Store, rooms room.Deleter, opts ...CommitHandlerOption) *CommitHandler {
	h := &CommitHandler{
		call:            call,
		roomName:        roomName,
		store:           store,
		rooms:           rooms,
		gracePeriod:     DefaultGracePeriod,
		teardownTimeout: DefaultTeardownTimeout,
		policy:          OverwritePolicy,
		state:           StateAwaitingAnswer,
		done:            make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	h.logger = log.With().
		Str("component", "calling-agent").
		Str("phone_number", call.PhoneNumber).
		Int("row_index", call.RowIndex).
		Str("room", roomName).
		Logger()
	return h
}

func (h *CommitHandler) State() State {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

func (h *CommitHandler) setState(s State) {
	h.stateMu.Lock()
	prev := h.state
	h.state = s
	h.stateMu.Unlock()
	h.logger.Debug().Stringer("from", prev).Stringer("to", s).Msg("commit state")
}

// Done is closed once the call reached StateTerminated.
func (h *CommitHandler) Done() <-chan struct{} { return h.done }

// Commit persists answer for the call's row and tears the call down.
//
// An unknown row yields MessageCommitFailed together with an error wrapping
// dataset.ErrRowOutOfRange; nothing is written and the call stays open. A failed
// teardown is logged only: the answer is already stored.
func (h *CommitHandler) Commit(ctx context.Context, answer string) (CommitResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.State()
	if prev == StateTerminated && h.policy == RejectPolicy {
		h.logger.Warn().Str("answer", answer).Msg("answer already recorded for this call, ignoring")
		return CommitResult{Message: MessageAlreadyRecorded}, nil
	}

	h.setState(StateCommitting)
	h.logger.Info().Str("answer", answer).Msg("recording survey answer")

	if err := h.store.CommitAnswer(ctx, h.call.RowIndex, answer); err != nil {
		if errors.Is(err, dataset.ErrRowOutOfRange) {
			h.logger.Error().Err(err).Msg("invalid row index")
		} else {
			h.logger.Error().Err(err).Msg("could not update survey data")
		}
		h.setState(prev)
		return CommitResult{Message: MessageCommitFailed}, err
	}
	h.logger.Info().Msg("survey data updated")

	h.setState(StateClosing)
	h.waitGrace(ctx)
	h.teardown(ctx)
	h.setState(StateTerminated)
	h.closeDone.Do(func() { close(h.done) })

	return CommitResult{Message: MessageCompleted, Recorded: true}, nil
}

// waitGrace leaves the line open so the agent can say goodbye.
func (h *CommitHandler) waitGrace(ctx context.Context) {
	if h.gracePeriod <= 0 {
		return
	}
	t := time.NewTimer(h.gracePeriod)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		h.logger.Debug().Msg("grace period cut short by cancellation")
	}
}

func (h *CommitHandler) teardown(ctx context.Context) {
	if h.rooms == nil {
		h.logger.Warn().Msg("no room service configured, leaving room open")
		return
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.teardownTimeout)
	defer cancel()
	if err := h.rooms.DeleteRoom(tctx, h.roomName); err != nil {
		h.logger.Error().Err(err).Msg("failed to delete room")
		return
	}
	h.logger.Info().Msg("room deleted")
}
