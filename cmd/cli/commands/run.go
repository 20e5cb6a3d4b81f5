package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cliconfig "github.com/inferloop/flsim/cmd/cli/config"
)

type RunOptions struct {
	ServerURL string
	Rounds    int
	Save      bool
	Name      string
}

type roundMetrics struct {
	Round                int      `json:"round"`
	GlobalLoss           float64  `json:"globalLoss"`
	GlobalAccuracy       float64  `json:"globalAccuracy"`
	AggregationTimeMs    float64  `json:"aggregationTime"`
	ParticipatingClients []string `json:"participatingClients"`
	ClusterMetrics       []struct {
		ClusterID       int      `json:"clusterId"`
		Accuracy        float64  `json:"accuracy"`
		MemberClientIDs []string `json:"memberClientIds"`
	} `json:"clusterMetrics"`
}

func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run federated learning rounds on the simulation server",
		Long: `Run one or more federated learning rounds against a running simulation
server and report per-round global loss and accuracy.`,
		Example: `  # Run a single round
  flsim-cli run

  # Run 20 rounds and save the experiment afterwards
  flsim-cli run --rounds 20 --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRounds(opts)
		},
	}

	cmd.Flags().StringVar(&opts.ServerURL, "server", "", "Simulation server URL (defaults to configured server_url)")
	cmd.Flags().IntVarP(&opts.Rounds, "rounds", "r", 1, "Number of rounds to run")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Save the experiment after the last round")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Experiment name used when saving")

	return cmd
}

func runRounds(opts *RunOptions) error {
	client, err := resolveClient(opts.ServerURL)
	if err != nil {
		return err
	}
	if opts.Rounds < 1 {
		return fmt.Errorf("rounds must be at least 1")
	}

	fmt.Printf("Running %d round(s)...\n\n", opts.Rounds)
	for i := 0; i < opts.Rounds; i++ {
		var metrics roundMetrics
		if err := client.post("/api/v1/rounds/run", nil, &metrics); err != nil {
			return fmt.Errorf("round failed: %w", err)
		}
		fmt.Printf("Round %3d: loss=%.4f accuracy=%.4f participants=%d aggregation=%.2fms\n",
			metrics.Round, metrics.GlobalLoss, metrics.GlobalAccuracy,
			len(metrics.ParticipatingClients), metrics.AggregationTimeMs)
		for _, c := range metrics.ClusterMetrics {
			fmt.Printf("           cluster %d: accuracy=%.4f members=%v\n",
				c.ClusterID, c.Accuracy, c.MemberClientIDs)
		}
	}

	if !opts.Save {
		return nil
	}

	var saved struct {
		ID string `json:"id"`
	}
	if err := client.post("/api/v1/experiments", nil, &saved); err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}
	fmt.Printf("\nExperiment saved: %s\n", saved.ID)
	return nil
}

// resolveClient builds an API client from the flag value or, failing that,
// the CLI configuration.
func resolveClient(serverURL string) (*apiClient, error) {
	if serverURL != "" {
		return newAPIClient(serverURL), nil
	}
	cfg, err := cliconfig.LoadConfig("")
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg.ServerURL), nil
}
