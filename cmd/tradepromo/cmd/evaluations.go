package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/solatis/tradepromo/internal/types"
	"github.com/spf13/cobra"
)

var evaluationsCmd = &cobra.Command{
	Use:   "evaluations",
	Short: "Inspect the evaluation journal",
}

var evaluationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent evaluations, newest first",
	Args:  cobra.NoArgs,
	RunE:  runEvaluationsList,
}

var evaluationsShowCmd = &cobra.Command{
	Use:   "show EVALUATION_ID",
	Short: "Print one evaluation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluationsShow,
}

func init() {
	rootCmd.AddCommand(evaluationsCmd)
	evaluationsCmd.AddCommand(evaluationsListCmd, evaluationsShowCmd)
	evaluationsListCmd.Flags().Int("limit", 20, "maximum number of evaluations")
}

func runEvaluationsList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	recs, err := store.ListEvaluations(commandContext(cmd), limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVALUATION ID\tCREATED\tTRIGGERED\tAPI KEY ID")
	for _, r := range recs {
		key := "-"
		if r.APIKeyID.Valid {
			key = r.APIKeyID.String
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.CreatedAt.UTC().Format(time.RFC3339), r.Triggered, key)
	}
	return tw.Flush()
}

func runEvaluationsShow(cmd *cobra.Command, args []string) error {
	id, err := types.ParseEvaluationID(args[0])
	if err != nil {
		return fmt.Errorf("invalid evaluation ID %q: %w", args[0], err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	rec, err := store.GetEvaluation(commandContext(cmd), id)
	if err != nil {
		return err
	}

	out := struct {
		ID        types.EvaluationID `json:"evaluation_id"`
		APIKeyID  string             `json:"api_key_id,omitempty"`
		CreatedAt time.Time          `json:"created_at"`
		Triggered int                `json:"triggered"`
		Input     json.RawMessage    `json:"input"`
		Result    json.RawMessage    `json:"result"`
		Errors    json.RawMessage    `json:"errors"`
	}{
		ID:        rec.ID,
		APIKeyID:  rec.APIKeyID.String,
		CreatedAt: rec.CreatedAt.UTC(),
		Triggered: rec.Triggered,
		Input:     json.RawMessage(rec.Input),
		Result:    json.RawMessage(rec.Result),
		Errors:    json.RawMessage(rec.Errors),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
