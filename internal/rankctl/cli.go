package rankctl

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

// Defaults for the persistent flags.
const (
	DefaultServer  = "http://localhost:9080"
	DefaultTimeout = 10 * time.Second
)

var errPartyRequired = errors.New("party id is required")

// NewRootCommand builds the rankctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "rankctl",
		Short:         "Submit evaluations to and query a reputation server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("server", DefaultServer, "Reputation server base URL")
	root.PersistentFlags().Duration("timeout", DefaultTimeout, "Request timeout")
	root.PersistentFlags().StringP("format", "f", FormatTable, "Output format: table, json")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.AddCommand(
		catalogCmd(),
		submitCmd(),
		partyCmd("statistics", "stats", "Show every observed aspect of a party", runStatistics),
		partyCmd("summary", "", "Show the top aspects of a party", runSummary),
		partyCmd("ranking", "rank", "Show the public ranking view of a party", runRanking),
		leaderboardCmd(),
		seedCmd(),
	)
	return root
}

func clientAndRenderer(cmd *cobra.Command) (*Client, *Renderer) {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	format, _ := cmd.Flags().GetString("format")
	noColor, _ := cmd.Flags().GetBool("no-color")
	return NewClient(server, timeout), NewRenderer(cmd.OutOrStdout(), format, !noColor && format != FormatJSON)
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the selectable aspects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, out := clientAndRenderer(cmd)
			v, err := client.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			return out.Catalog(v)
		},
	}
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one evaluation",
		Args:  cobra.NoArgs,
		RunE:  runSubmit,
	}
	cmd.Flags().String("rater", "", "Rater party id")
	cmd.Flags().String("rated", "", "Rated party id")
	cmd.Flags().String("tx", "", "Transaction id")
	cmd.Flags().StringSliceP("positive", "p", nil, "Positive aspect codes")
	cmd.Flags().StringSliceP("negative", "n", nil, "Negative aspect codes")
	cmd.Flags().String("comment", "", "Free text comment")
	_ = cmd.MarkFlagRequired("rated")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	rater, _ := cmd.Flags().GetString("rater")
	rated, _ := cmd.Flags().GetString("rated")
	tx, _ := cmd.Flags().GetString("tx")
	positive, _ := cmd.Flags().GetStringSlice("positive")
	negative, _ := cmd.Flags().GetStringSlice("negative")
	comment, _ := cmd.Flags().GetString("comment")

	client, out := clientAndRenderer(cmd)
	res, err := client.Submit(cmd.Context(), SubmitRequest{
		RaterID:       rater,
		RatedID:       rated,
		TransactionID: tx,
		Positive:      positive,
		Negative:      negative,
		Comment:       comment,
	})
	if err != nil {
		return err
	}
	return out.Submitted(res)
}

func partyCmd(name, alias, short string, run func(*cobra.Command, string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <party-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return errPartyRequired
			}
			return run(cmd, args[0])
		},
	}
	if alias != "" {
		cmd.Aliases = []string{alias}
	}
	return cmd
}

func runStatistics(cmd *cobra.Command, id string) error {
	client, out := clientAndRenderer(cmd)
	s, err := client.Statistics(cmd.Context(), id)
	if err != nil {
		return err
	}
	return out.Statistics(s)
}

func runSummary(cmd *cobra.Command, id string) error {
	client, out := clientAndRenderer(cmd)
	s, err := client.Summary(cmd.Context(), id)
	if err != nil {
		return err
	}
	return out.Summary(s)
}

func runRanking(cmd *cobra.Command, id string) error {
	client, out := clientAndRenderer(cmd)
	v, err := client.Ranking(cmd.Context(), id)
	if err != nil {
		return err
	}
	return out.Ranking(v)
}

func leaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "leaderboard",
		Aliases: []string{"top"},
		Short:   "Show the best ranked parties",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			client, out := clientAndRenderer(cmd)
			entries, err := client.Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return out.Leaderboard(entries)
		},
	}
	cmd.Flags().IntP("limit", "l", 10, "Number of parties to show")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Submit random evaluations for load and demo data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := SeedConfig{}
			cfg.Parties, _ = cmd.Flags().GetInt("parties")
			cfg.Evaluations, _ = cmd.Flags().GetInt("evaluations")
			cfg.Workers, _ = cmd.Flags().GetInt("workers")
			cfg.NegativeRatio, _ = cmd.Flags().GetFloat64("negative-ratio")
			cfg.MaxAspects, _ = cmd.Flags().GetInt("max-aspects")
			cfg.RandSeed, _ = cmd.Flags().GetUint64("seed")

			client, out := clientAndRenderer(cmd)
			rep, err := Seed(cmd.Context(), client, cfg)
			if rerr := out.Seeded(rep); rerr != nil && err == nil {
				err = rerr
			}
			return err
		},
	}
	cmd.Flags().Int("parties", 50, "Number of distinct parties")
	cmd.Flags().Int("evaluations", 1000, "Number of evaluations to submit")
	cmd.Flags().Int("workers", 16, "Concurrent submitters")
	cmd.Flags().Float64("negative-ratio", 0.3, "Share of evaluations carrying negative aspects")
	cmd.Flags().Int("max-aspects", 2, "Maximum aspects per polarity")
	cmd.Flags().Uint64("seed", 1, "Random seed")
	return cmd
}
