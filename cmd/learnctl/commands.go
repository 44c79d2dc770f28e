package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/campaignly/learning-engine/pkg/models"
)

const version = "0.1.0"

func newRootCommand(out io.Writer) *cobra.Command {
	client := &Client{}

	rootCmd := &cobra.Command{
		Use:   "learnctl",
		Short: "learnctl - inspect and feed the learning engine",
		Long: `learnctl talks to a learning engine server over HTTP.
All output is JSON (pipe through jq for filtering).`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVarP(&client.BaseURL, "server", "s", envOr("LEARNING_SERVER", "http://localhost:8080"), "Learning engine URL")
	rootCmd.PersistentFlags().StringVar(&client.OrgID, "org", envOr("LEARNING_ORG", ""), "Organization ID")
	rootCmd.PersistentFlags().StringVar(&client.APIKey, "api-key", os.Getenv("LEARNING_API_KEY"), "API key")

	rootCmd.AddCommand(
		newAgentsCommand(client),
		newStateCommand(client),
		newResetCommand(client),
		newAnalysisCommand(client),
		newInsightsCommand(client),
		newContextCommand(client),
		newRecordCommand(client),
		newFeedbackCommand(client),
		newPreferencesCommand(client),
	)
	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// agentPath validates the agent type argument and builds its API path.
func agentPath(arg, suffix string) (string, error) {
	at, err := models.ParseAgentType(arg)
	if err != nil {
		return "", err
	}
	return "/api/v1/agents/" + url.PathEscape(string(at)) + "/" + suffix, nil
}

func printResult(cmd *cobra.Command, data []byte, err error) error {
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), data)
}

// --- Read commands ---

func newAgentsCommand(c *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Show the state of every agent in the organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.get("/api/v1/agents", nil)
			return printResult(cmd, data, err)
		},
	}
}

// agentGet builds a one-argument command that GETs an agent sub-resource.
func agentGet(c *Client, use, short, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <agent_type>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := agentPath(args[0], suffix)
			if err != nil {
				return err
			}
			data, err := c.get(path, nil)
			return printResult(cmd, data, err)
		},
	}
}

func newStateCommand(c *Client) *cobra.Command {
	return agentGet(c, "state", "Show an agent's learning state", "state")
}

func newAnalysisCommand(c *Client) *cobra.Command {
	return agentGet(c, "analysis", "Show an agent's health analysis", "analysis")
}

func newInsightsCommand(c *Client) *cobra.Command {
	return agentGet(c, "insights", "Show insights derived from an agent's history", "insights")
}

func newContextCommand(c *Client) *cobra.Command {
	var taskType, productID, audienceID string
	cmd := &cobra.Command{
		Use:   "context <agent_type>",
		Short: "Show the learning context and prompt for a task",
		Example: `  learnctl context email_marketer --task-type=email_single
  learnctl context content_writer --task-type=blog_post --product=p1 --audience=smb`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := agentPath(args[0], "context")
			if err != nil {
				return err
			}
			params := url.Values{}
			params.Set("task_type", taskType)
			if productID != "" {
				params.Set("product_id", productID)
			}
			if audienceID != "" {
				params.Set("audience_id", audienceID)
			}
			data, err := c.get(path, params)
			return printResult(cmd, data, err)
		},
	}
	cmd.Flags().StringVar(&taskType, "task-type", "", "Task type (required)")
	cmd.Flags().StringVar(&productID, "product", "", "Product ID")
	cmd.Flags().StringVar(&audienceID, "audience", "", "Audience ID")
	cmd.MarkFlagRequired("task-type")
	return cmd
}

// --- Write commands ---

func newResetCommand(c *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <agent_type>",
		Short: "Discard everything an agent has learned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := agentPath(args[0], "state")
			if err != nil {
				return err
			}
			if _, err := c.delete(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", args[0])
			return nil
		},
	}
}

func newRecordCommand(c *Client) *cobra.Command {
	var (
		task      models.TaskPerformance
		revisions int

		openRate, clickRate, convRate, approve float64
	)
	cmd := &cobra.Command{
		Use:     "record <agent_type>",
		Short:   "Record a completed task's performance",
		Example: `  learnctl record email_marketer --task-id=t1 --task-type=email_single --open-rate=0.31`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := agentPath(args[0], "performance")
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("open-rate") {
				task.Metrics.OpenRate = models.Rate(openRate)
			}
			if f.Changed("click-rate") {
				task.Metrics.ClickRate = models.Rate(clickRate)
			}
			if f.Changed("conversion-rate") {
				task.Metrics.ConversionRate = models.Rate(convRate)
			}
			if f.Changed("approval-rate") {
				task.Metrics.ApprovalRate = models.Rate(approve)
			}
			if f.Changed("revisions") {
				task.Metrics.RevisionCount = models.Count(revisions)
			}
			data, err := c.post(path, task)
			return printResult(cmd, data, err)
		},
	}
	cmd.Flags().StringVar(&task.TaskID, "task-id", "", "Task ID (required)")
	cmd.Flags().StringVar(&task.TaskType, "task-type", "", "Task type (required)")
	cmd.Flags().StringVar(&task.ContentSummary, "summary", "", "Short summary of the produced content")
	cmd.Flags().Float64Var(&openRate, "open-rate", 0, "Open rate in [0,1]")
	cmd.Flags().Float64Var(&clickRate, "click-rate", 0, "Click rate in [0,1]")
	cmd.Flags().Float64Var(&convRate, "conversion-rate", 0, "Conversion rate in [0,1]")
	cmd.Flags().Float64Var(&approve, "approval-rate", 0, "Approval rate in [0,1]")
	cmd.Flags().IntVar(&revisions, "revisions", 0, "Number of revisions requested")
	cmd.MarkFlagRequired("task-id")
	cmd.MarkFlagRequired("task-type")
	return cmd
}

func newFeedbackCommand(c *Client) *cobra.Command {
	var (
		fb               models.Feedback
		toneFrom, toneTo string
	)
	cmd := &cobra.Command{
		Use:   "feedback <agent_type>",
		Short: "Submit user feedback for a task",
		Example: `  learnctl feedback content_writer --task-id=t1 --rating=2 --text="Too salesy"
  learnctl feedback content_writer --task-id=t1 --rating=5 --approved --tone-from=formal --tone-to=casual`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := agentPath(args[0], "feedback")
			if err != nil {
				return err
			}
			if toneFrom != "" || toneTo != "" {
				fb.Corrections = append(fb.Corrections, models.Correction{
					Field:     "tone",
					Original:  toneFrom,
					Corrected: toneTo,
				})
			}
			data, err := c.post(path, fb)
			return printResult(cmd, data, err)
		},
	}
	cmd.Flags().StringVar(&fb.TaskID, "task-id", "", "Task ID (required)")
	cmd.Flags().IntVar(&fb.Rating, "rating", 0, "Rating from 1 to 5 (required)")
	cmd.Flags().StringVar(&fb.FeedbackText, "text", "", "Free-text feedback")
	cmd.Flags().BoolVar(&fb.Approved, "approved", false, "Content was approved")
	cmd.Flags().StringVar(&toneFrom, "tone-from", "", "Tone to avoid")
	cmd.Flags().StringVar(&toneTo, "tone-to", "", "Tone to prefer instead")
	cmd.MarkFlagRequired("task-id")
	cmd.MarkFlagRequired("rating")
	return cmd
}

func newPreferencesCommand(c *Client) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     "preferences <agent_type>",
		Short:   "Apply a JSON preferences patch",
		Example: `  learnctl preferences content_writer --file=patch.json
  echo '{"organization_context":"B2B payroll software"}' | learnctl preferences analyst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := agentPath(args[0], "preferences")
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var patch models.PreferencesPatch
			if err := json.NewDecoder(r).Decode(&patch); err != nil {
				return fmt.Errorf("invalid preferences patch: %w", err)
			}
			data, err := c.patch(path, patch)
			return printResult(cmd, data, err)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Patch file, or - for stdin")
	return cmd
}
