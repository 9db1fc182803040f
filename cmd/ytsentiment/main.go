package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spacesedan/ytsentiment/config"
	"github.com/spacesedan/ytsentiment/internal/app"
	"github.com/spacesedan/ytsentiment/internal/logging"
	"github.com/spacesedan/ytsentiment/internal/models"
	"github.com/spacesedan/ytsentiment/internal/sentiment"
	"github.com/spacesedan/ytsentiment/internal/video"
)

var (
	settings *config.Settings
	limit    int
	asJSON   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "ytsentiment",
	Short:        "Sentiment analysis for YouTube comments",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnv(config.AppEnv())

		var err error
		settings, err = config.Load()
		if err != nil {
			return err
		}
		logging.InitLogger(settings.LogLevel)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of comments to analyze (default COMMENT_LIMIT)")
	analyzeCmd.Flags().BoolVar(&asJSON, "json", false, "Print the full analysis as JSON")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(normalizeCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url-or-id>",
	Short: "Print the video id for a YouTube URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := video.Resolve(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <text>",
	Short: "Print text as the model sees it after preprocessing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := app.NewNormalizer(settings)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n.Normalize(strings.Join(args, " ")))
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url-or-id>",
	Short: "Fetch and classify the comments of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if limit < 0 {
			return fmt.Errorf("--limit must be a positive number")
		}

		ctx := cmd.Context()
		analyzer, err := app.NewAnalyzer(ctx, settings)
		if err != nil {
			return err
		}

		analysis, err := analyzer.Analyze(ctx, args[0], limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		}
		printSummary(out, analysis)
		return nil
	},
}

func printSummary(w io.Writer, a *models.Analysis) {
	fmt.Fprintf(w, "Video:    %s\n", a.VideoID)
	fmt.Fprintf(w, "Model:    %s v%s (%s)\n", a.Model.Name, a.Model.Version, a.Model.Stage)
	fmt.Fprintf(w, "Comments: %d\n\n", len(a.Predictions))

	total := len(a.Predictions)
	for _, label := range sentiment.Labels {
		count := a.Counts[label]
		pct := 0.0
		if total > 0 {
			pct = float64(count) / float64(total) * 100
		}
		fmt.Fprintf(w, "  %-9s %5d  %5.1f%%\n", label, count, pct)
	}
	if a.BaselineAgreement != nil {
		fmt.Fprintf(w, "\nVADER agreement: %.1f%%\n", *a.BaselineAgreement*100)
	}
}
