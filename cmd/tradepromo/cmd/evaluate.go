package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/solatis/tradepromo/internal/core/api"
	"github.com/solatis/tradepromo/internal/core/config"
	"github.com/solatis/tradepromo/internal/core/db"
	"github.com/solatis/tradepromo/internal/promo"
	"github.com/solatis/tradepromo/internal/types"
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one customer against the rule set",
	Long: `Evaluate prompts for customer details (or reads them from --subject),
runs every rule in order and prints the resulting discount.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("subject", "", "JSON file with customer details (- for stdin); prompts when empty")
	evaluateCmd.Flags().Bool("json", false, "print the full evaluation result as JSON")
	evaluateCmd.Flags().String("rules-dir", "", "directory of rule documents")
	evaluateCmd.Flags().String("rule-source", "", "rule source (dir, db)")
	evaluateCmd.Flags().Bool("stop-on-first-trigger", false, "stop after the first matching rule")
	evaluateCmd.Flags().Bool("strict", false, "report discount configurations that have no effect as errors")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var store *db.Store
	if cfg.Server.RuleSource == config.RuleSourceDB {
		conn, s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		store = s
	}
	source, err := ruleSourceFor(cfg, store)
	if err != nil {
		return err
	}

	subject, err := readSubject(cmd)
	if err != nil {
		return err
	}

	service, err := api.NewPromotionService(ctx, api.Options{
		Source:        source,
		StrictActions: cfg.Engine.StrictActions,
	})
	if err != nil {
		return err
	}

	result, err := service.Evaluate(ctx, subject, cfg.Engine.StopOnFirstTrigger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printResult(out, result)
}

func readSubject(cmd *cobra.Command) (types.Subject, error) {
	path, _ := cmd.Flags().GetString("subject")
	if path == "" {
		c, err := promptCustomer(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return nil, err
		}
		return c.Subject(), nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), types.MaxDocumentSize+1))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read subject: %w", err)
	}

	var subject types.Subject
	if err := types.DecodeJSON(data, &subject); err != nil {
		return nil, fmt.Errorf("invalid subject JSON: %w", err)
	}
	return subject, nil
}

// promptCustomer asks for each customer field on w and reads answers from
// r. Blank numeric answers are zero; only "true" (any case) is true.
func promptCustomer(r io.Reader, w io.Writer) (promo.Customer, error) {
	in := bufio.NewScanner(r)
	ask := func(prompt string) string {
		fmt.Fprint(w, prompt)
		if !in.Scan() {
			return ""
		}
		return strings.TrimSpace(in.Text())
	}

	fmt.Fprintln(w, "Enter customer details:")
	c := promo.Customer{
		CustomerCategory:       ask("Customer Category (e.g., Distributor / Retailer): "),
		Region:                 ask("Region (e.g., North / East): "),
		CustomerClassification: ask("Customer Classification (green / amber / red): "),
		Brand:                  ask("Brand (optional): "),
		Category:               ask("Category (optional): "),
	}

	if v := ask("Purchase Value: "); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return promo.Customer{}, fmt.Errorf("purchase value %q is not a number", v)
		}
		c.PurchaseValue = f
	}
	if v := ask("Purchase Quantity: "); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return promo.Customer{}, fmt.Errorf("purchase quantity %q is not an integer", v)
		}
		c.PurchaseQuantity = n
	}
	c.PTRBased = strings.EqualFold(ask("PTR Based (true/false): "), "true")

	if err := in.Err(); err != nil {
		return promo.Customer{}, err
	}
	return c, nil
}

func printResult(w io.Writer, result api.EvaluationResult) error {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Result ---")
	for _, line := range result.Summary {
		fmt.Fprintln(w, line)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "warning: %s\n", e)
	}
	return nil
}

// ruleSourceFor returns the configured rule source. store may be nil when
// the source is a directory.
func ruleSourceFor(cfg *config.Config, store *db.Store) (api.RuleSource, error) {
	switch cfg.Server.RuleSource {
	case config.RuleSourceDB:
		if store == nil {
			return nil, fmt.Errorf("rule source %q requires a database", config.RuleSourceDB)
		}
		return api.StoreSource{Store: store}, nil
	default:
		return api.DirSource{Dir: cfg.Engine.RulesDir}, nil
	}
}
