// Package jobs carries call jobs from a dispatcher to survey workers.
package jobs

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

const DefaultAgentName = "survey-agent"

// Job asks a worker to run one call in Room. Metadata is the raw JSON document the
// call handler parses.
type Job struct {
	ID        string `json:"id"`
	AgentName string `json:"agent_name"`
	Room      string `json:"room"`
	Metadata  string `json:"metadata"`
}

// Topic is where jobs for agentName are published.
func Topic(agentName string) string {
	return "agent-jobs." + agentName
}

func (j Job) Message() (*message.Message, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return nil, errors.Wrap(err, "marshal job")
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("job_id", j.ID)
	msg.Metadata.Set("room", j.Room)
	return msg, nil
}

func DecodeJob(msg *message.Message) (Job, error) {
	var j Job
	if err := json.Unmarshal(msg.Payload, &j); err != nil {
		return j, errors.Wrapf(err, "decode job from message %s", msg.UUID)
	}
	if j.Room == "" {
		return j, errors.Errorf("job %s has no room", j.ID)
	}
	return j, nil
}
