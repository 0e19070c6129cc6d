package jobs

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/geppetto/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Handler runs one call. It is the job's supervisor: whatever it returns is logged
// by the worker and the job is not retried.
type Handler func(ctx context.Context, room string, metadata string) error

type Worker struct {
	router        *events.EventRouter
	agentName     string
	handler       Handler
	maxConcurrent int
}

func NewWorker(router *events.EventRouter, agentName string, maxConcurrent int, handler Handler) *Worker {
	if agentName == "" {
		agentName = DefaultAgentName
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Worker{router: router, agentName: agentName, handler: handler, maxConcurrent: maxConcurrent}
}

// Run serves jobs until ctx is done. A job is acknowledged once its call starts;
// when maxConcurrent calls are running, the next message waits for a free slot.
func (w *Worker) Run(ctx context.Context) error {
	if w.handler == nil {
		return errors.New("worker: no job handler")
	}
	calls, callCtx := errgroup.WithContext(ctx)
	calls.SetLimit(w.maxConcurrent)

	topic := Topic(w.agentName)
	w.router.AddHandler(w.agentName, topic, func(msg *message.Message) error {
		job, err := DecodeJob(msg)
		if err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("dropping malformed job")
			return nil
		}
		calls.Go(func() error {
			w.runJob(callCtx, job)
			return nil
		})
		return nil
	})

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return w.router.Run(groupCtx) })
	eg.Go(func() error {
		select {
		case <-w.router.Running():
			log.Info().Str("agent", w.agentName).Str("topic", topic).Int("max_concurrent", w.maxConcurrent).Msg("worker ready")
		case <-groupCtx.Done():
		}
		<-groupCtx.Done()
		return nil
	})

	err := eg.Wait()
	_ = calls.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) runJob(ctx context.Context, job Job) {
	logger := log.With().Str("job_id", job.ID).Str("room", job.Room).Logger()
	logger.Info().Msg("call job started")
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("call job panicked")
		}
	}()
	if err := w.handler(ctx, job.Room, job.Metadata); err != nil {
		logger.Error().Err(err).Msg("call job failed")
		return
	}
	logger.Info().Msg("call job finished")
}
