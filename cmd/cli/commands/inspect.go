package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type InspectOptions struct {
	ServerURL string
	Rounds    bool
}

type experimentDocument struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RoundHistory []struct {
		Round          int     `json:"round"`
		GlobalLoss     float64 `json:"globalLoss"`
		GlobalAccuracy float64 `json:"globalAccuracy"`
	} `json:"roundHistory"`
	ClientModels []struct {
		ClientID string `json:"clientId"`
	} `json:"clientModels"`
	ServerConfig struct {
		AggregationMethod       string `json:"aggregationMethod"`
		ClientAggregationMethod string `json:"clientAggregationMethod"`
		DistanceMetric          string `json:"distanceMetric"`
	} `json:"serverConfig"`
	SavedAt time.Time `json:"savedAt"`
}

func NewInspectCmd() *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect [experiment-id]",
		Short: "List saved experiments or show one in detail",
		Long: `Without arguments, list the ids of all saved experiments. With an id,
show the experiment's configuration and round history summary.`,
		Example: `  # List saved experiments
  flsim-cli inspect

  # Show one experiment with its full round history
  flsim-cli inspect 7c9e6679-... --rounds`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listExperiments(opts)
			}
			return inspectExperiment(opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.ServerURL, "server", "", "Simulation server URL (defaults to configured server_url)")
	cmd.Flags().BoolVar(&opts.Rounds, "rounds", false, "Print the full round history")

	return cmd
}

func listExperiments(opts *InspectOptions) error {
	client, err := resolveClient(opts.ServerURL)
	if err != nil {
		return err
	}

	var listing struct {
		Experiments []string `json:"experiments"`
	}
	if err := client.get("/api/v1/experiments", &listing); err != nil {
		return err
	}

	if len(listing.Experiments) == 0 {
		fmt.Println("No saved experiments.")
		return nil
	}
	fmt.Printf("Saved experiments (%d):\n", len(listing.Experiments))
	for _, id := range listing.Experiments {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

func inspectExperiment(opts *InspectOptions, id string) error {
	client, err := resolveClient(opts.ServerURL)
	if err != nil {
		return err
	}

	var doc experimentDocument
	if err := client.get("/api/v1/experiments/"+id, &doc); err != nil {
		return err
	}

	fmt.Printf("Experiment: %s\n", doc.ID)
	if doc.Name != "" {
		fmt.Printf("Name:       %s\n", doc.Name)
	}
	fmt.Printf("Saved:      %s\n", doc.SavedAt.Format(time.RFC3339))
	fmt.Printf("Rounds:     %d\n", len(doc.RoundHistory))
	fmt.Printf("Clients:    %d\n", len(doc.ClientModels))
	fmt.Printf("Config:     method=%s strategy=%s metric=%s\n",
		doc.ServerConfig.AggregationMethod,
		doc.ServerConfig.ClientAggregationMethod,
		doc.ServerConfig.DistanceMetric)

	if len(doc.RoundHistory) > 0 {
		last := doc.RoundHistory[len(doc.RoundHistory)-1]
		fmt.Printf("Final:      loss=%.4f accuracy=%.4f\n", last.GlobalLoss, last.GlobalAccuracy)
	}

	if opts.Rounds {
		fmt.Println("\nRound history:")
		for _, r := range doc.RoundHistory {
			fmt.Printf("  %3d: loss=%.4f accuracy=%.4f\n", r.Round, r.GlobalLoss, r.GlobalAccuracy)
		}
	}

	return nil
}
