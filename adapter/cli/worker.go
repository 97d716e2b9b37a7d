package cli

import (
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the event worker",
	Long: `Run the outbox processor, the RabbitMQ consumer that feeds the
subscribers, the retention and calendar import jobs and the health
endpoints on WORKER_HEALTH_ADDR. Blocks until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		Logger().Info("starting therapia worker",
			"broker", c.RabbitPublisher != nil,
			"health_addr", c.Config.WorkerHealthAddr,
		)
		return c.RunWorker(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
