package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

type CompareOptions struct {
	ServerURL string
	Metric    string
}

type compareResult struct {
	Alignment struct {
		Rounds         int          `json:"rounds"`
		Labels         []string     `json:"labels"`
		GlobalLoss     [][]*float64 `json:"globalLoss"`
		GlobalAccuracy [][]*float64 `json:"globalAccuracy"`
	} `json:"alignment"`
	Similarity [][]float64 `json:"similarity"`
}

func NewCompareCmd() *cobra.Command {
	opts := &CompareOptions{}

	cmd := &cobra.Command{
		Use:   "compare <experiment-id> <experiment-id> [more-ids...]",
		Short: "Compare saved experiments against each other",
		Long: `Compare two or more saved experiments: align their round histories and
score the similarity of their final client models.`,
		Example: `  # Compare two experiments with the server's configured metric
  flsim-cli compare 7c9e6679-... f47ac10b-...

  # Compare with an explicit metric
  flsim-cli compare --metric l2 7c9e6679-... f47ac10b-...`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.ServerURL, "server", "", "Simulation server URL (defaults to configured server_url)")
	cmd.Flags().StringVarP(&opts.Metric, "metric", "m", "", "Distance metric for similarity (l1, l2, cosine)")

	return cmd
}

func runCompare(opts *CompareOptions, ids []string) error {
	client, err := resolveClient(opts.ServerURL)
	if err != nil {
		return err
	}

	request := map[string]interface{}{"ids": ids}
	if opts.Metric != "" {
		request["metric"] = opts.Metric
	}

	var result compareResult
	if err := client.post("/api/v1/experiments/compare", request, &result); err != nil {
		return err
	}

	fmt.Printf("Compared %d experiments over %d rounds\n\n", len(ids), result.Alignment.Rounds)

	fmt.Println("Final round quality:")
	for i, label := range result.Alignment.Labels {
		loss := lastValue(result.Alignment.GlobalLoss[i])
		acc := lastValue(result.Alignment.GlobalAccuracy[i])
		fmt.Printf("  [%d] %-12s %s  loss=%s accuracy=%s\n", i, label, shortID(ids[i]), formatValue(loss), formatValue(acc))
	}

	fmt.Println("\nSimilarity matrix:")
	for i, row := range result.Similarity {
		fmt.Printf("  [%d]", i)
		for _, s := range row {
			fmt.Printf(" %6.3f", s)
		}
		fmt.Println()
	}

	return nil
}

// lastValue returns the final non-nil entry of an aligned series.
func lastValue(series []*float64) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != nil {
			return series[i]
		}
	}
	return nil
}

func formatValue(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
