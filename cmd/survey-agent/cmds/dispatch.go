package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/survey-caller/pkg/jobs"
	"github.com/go-go-golems/survey-caller/pkg/survey"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDispatchCommand(a *app) *cobra.Command {
	var (
		phone    string
		row      int
		question string
	)
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Publish a call job for one dataset row",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Jobs.RedisEnabled {
				return errors.New("dispatch needs the redis job transport (--jobs.redis-enabled)")
			}
			cc := survey.CallContext{PhoneNumber: phone, RowIndex: row, Question: question}
			metadata, err := json.Marshal(cc)
			if err != nil {
				return errors.Wrap(err, "encode metadata")
			}

			router, err := jobs.BuildRouter(cmd.Context(), a.cfg.Jobs)
			if err != nil {
				return errors.Wrap(err, "job router")
			}
			defer func() { _ = router.Close() }()

			job, err := jobs.NewDispatcher(router.Publisher, a.cfg.Agent.Name).Dispatch(cmd.Context(), string(metadata))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", job.ID, job.Room)
			return err
		},
	}
	cmd.Flags().StringVar(&phone, "phone", survey.UnknownPhoneNumber, "Phone number to call")
	cmd.Flags().IntVar(&row, "row", survey.DefaultRowIndex, "1-based dataset row the answer is written to")
	cmd.Flags().StringVar(&question, "question", survey.DefaultQuestion, "Question to ask")
	return cmd
}
