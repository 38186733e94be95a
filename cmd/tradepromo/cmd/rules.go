package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/solatis/tradepromo/internal/core/db"
	"github.com/solatis/tradepromo/internal/promo"
	"github.com/solatis/tradepromo/internal/rules"
	"github.com/solatis/tradepromo/internal/types"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage rules stored in the database",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Validate rule documents and append them to the database",
	Long: `Import compiles every rule before writing, so a document that references
an unknown variable or action is rejected as a whole. Rules are appended
after existing ones in file and document order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRulesImport,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rules in evaluation order",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesOperatorsCmd = &cobra.Command{
	Use:   "operators",
	Short: "List rule variables with their types and supported operators",
	Args:  cobra.NoArgs,
	RunE:  runRulesOperators,
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable RULE_ID",
	Short: "Exclude a rule from evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleState(cmd, args[0], db.RuleStateDisabled)
	},
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable RULE_ID",
	Short: "Return a disabled rule to evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleState(cmd, args[0], db.RuleStateActive)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesImportCmd, rulesListCmd, rulesOperatorsCmd, rulesDisableCmd, rulesEnableCmd)
	rulesImportCmd.Flags().Bool("replace", false, "delete all stored rules before importing")
	rulesListCmd.Flags().Bool("active", false, "list active rules only")
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var defs []types.RuleDefinition
	for _, path := range args {
		loaded, err := rules.LoadFile(path)
		if err != nil {
			return err
		}
		defs = append(defs, loaded...)
	}

	if _, err := rules.CompileAll(defs, promo.Variables(), promo.NewActions(promo.Options{})); err != nil {
		return fmt.Errorf("rejected: %w", err)
	}

	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	replace, _ := cmd.Flags().GetBool("replace")
	ids, err := store.SaveRules(commandContext(cmd), defs, replace)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	activeOnly, _ := cmd.Flags().GetBool("active")
	records, err := store.ListRules(commandContext(cmd), activeOnly)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POSITION\tRULE ID\tSTATE\tNAME")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Position, r.ID, r.State, r.Name)
	}
	return tw.Flush()
}

func runRulesOperators(cmd *cobra.Command, args []string) error {
	vars := promo.Variables()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tTYPE\tOPERATORS")
	for _, name := range vars.Names() {
		v, err := vars.Resolve(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Name, v.Type, strings.Join(rules.Operators(v.Type), ", "))
	}
	return tw.Flush()
}

func setRuleState(cmd *cobra.Command, rawID, state string) error {
	id, err := types.ParseRuleID(rawID)
	if err != nil {
		return fmt.Errorf("invalid rule ID %q: %w", rawID, err)
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

	if err := store.SetRuleState(commandContext(cmd), id, state); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rule %s %s\n", id, state)
	return nil
}
