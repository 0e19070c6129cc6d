package cmds

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/survey-caller/pkg/dataset"
	"github.com/go-go-golems/survey-caller/pkg/jobs"
	"github.com/go-go-golems/survey-caller/pkg/realtime"
	"github.com/go-go-golems/survey-caller/pkg/room"
	"github.com/go-go-golems/survey-caller/pkg/survey"
	"github.com/go-go-golems/survey-caller/pkg/survey/profile"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWorkerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve call jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runWorker(ctx)
		},
	}
}

func (a *app) runWorker(ctx context.Context) error {
	store, err := dataset.Open(ctx, a.cfg.Dataset)
	if err != nil {
		return errors.Wrap(err, "open dataset")
	}
	defer func() { _ = store.Close() }()

	controller, err := a.buildController(store)
	if err != nil {
		return err
	}

	router, err := jobs.BuildRouter(ctx, a.cfg.Jobs)
	if err != nil {
		return errors.Wrap(err, "job router")
	}
	defer func() {
		if err := router.Close(); err != nil {
			log.Warn().Err(err).Msg("closing job router")
		}
	}()
	if !a.cfg.Jobs.RedisEnabled {
		log.Warn().Msg("redis job transport disabled, this worker only sees jobs published in-process")
	}

	w := jobs.NewWorker(router, a.cfg.Agent.Name, a.cfg.Jobs.MaxConcurrent, controller.Run)
	return w.Run(ctx)
}

func (a *app) buildController(store dataset.Store) (*survey.Controller, error) {
	p, err := profile.Load(a.cfg.Agent.Profile)
	if err != nil {
		return nil, err
	}
	policy, err := survey.ParseDoubleCommitPolicy(a.cfg.Agent.DoubleCommit)
	if err != nil {
		return nil, err
	}
	rt, err := realtime.NewClient(a.cfg.Realtime)
	if err != nil {
		return nil, err
	}

	// A nil interface, not a nil *room.Service, disables teardown.
	var rooms room.Deleter
	if a.cfg.Room.URL != "" {
		svc, err := room.NewService(a.cfg.Room)
		if err != nil {
			return nil, err
		}
		rooms = svc
	} else {
		log.Warn().Msg("no room service url configured, calls will not be torn down after the answer")
	}

	opts := survey.DefaultControllerOptions()
	opts.GracePeriod = a.cfg.Agent.GracePeriod
	opts.TeardownTimeout = a.cfg.Agent.TeardownTimeout
	opts.DoubleCommit = policy
	opts.MaxInstructionTokens = a.cfg.Agent.MaxInstructionTokens
	return survey.NewController(rt, store, rooms, p, opts)
}
