package jobs

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RoomPrefix starts every room name created by a Dispatcher.
const RoomPrefix = "survey-"

type Dispatcher struct {
	pub       message.Publisher
	agentName string
}

func NewDispatcher(pub message.Publisher, agentName string) *Dispatcher {
	if agentName == "" {
		agentName = DefaultAgentName
	}
	return &Dispatcher{pub: pub, agentName: agentName}
}

// Dispatch publishes a job for a fresh room and returns it.
func (d *Dispatcher) Dispatch(ctx context.Context, metadata string) (Job, error) {
	id := uuid.NewString()
	job := Job{
		ID:        id,
		AgentName: d.agentName,
		Room:      RoomPrefix + id,
		Metadata:  metadata,
	}
	msg, err := job.Message()
	if err != nil {
		return job, err
	}
	msg.SetContext(ctx)
	topic := Topic(d.agentName)
	if err := d.pub.Publish(topic, msg); err != nil {
		return job, errors.Wrapf(err, "publish job to %s", topic)
	}
	log.Info().Str("job_id", job.ID).Str("room", job.Room).Str("topic", topic).Msg("dispatched call job")
	return job, nil
}
