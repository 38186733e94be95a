package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/solatis/tradepromo/internal/core/auth"
	"github.com/solatis/tradepromo/internal/core/config"
	"github.com/spf13/cobra"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for the gRPC service",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new API key",
	Long: `Create issues a key signed with one of the TP_HMAC_SECRET secrets and
prints it once. Only its HMAC is stored.`,
	Args: cobra.NoArgs,
	RunE: runAPIKeyCreate,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke API_KEY_ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued API keys",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyList,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd, apikeyListCmd)
	apikeyCreateCmd.Flags().String("name", "", "human-readable key name")
	apikeyCreateCmd.Flags().String("secret-id", "", "secret to sign with (required when several are configured)")
	_ = apikeyCreateCmd.MarkFlagRequired("name")
}

// selectSecret picks the signing secret: the requested one, or the only
// one configured.
func selectSecret(secrets map[string][]byte, secretID string) (string, []byte, error) {
	if secretID != "" {
		secret, ok := secrets[secretID]
		if !ok {
			return "", nil, fmt.Errorf("secret %s is not configured", secretID)
		}
		return secretID, secret, nil
	}

	switch len(secrets) {
	case 0:
		return "", nil, fmt.Errorf("no HMAC secrets configured (set TP_HMAC_SECRET environment variable)")
	case 1:
		for id, secret := range secrets {
			return id, secret, nil
		}
	}
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return "", nil, fmt.Errorf("several HMAC secrets configured, choose one with --secret-id: %v", ids)
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	requested, _ := cmd.Flags().GetString("secret-id")
	secretID, secret, err := selectSecret(secrets, requested)
	if err != nil {
		return err
	}

	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	key, hash, err := auth.GenerateAPIKey(secretID, secret)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	id, err := store.CreateAPIKey(commandContext(cmd), name, secretID, hash)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "api_key_id: %s\n", id)
	fmt.Fprintf(out, "api_key:    %s\n", key)
	fmt.Fprintln(out, "Store this key now; it cannot be shown again.")
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := store.RevokeAPIKey(commandContext(cmd), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "api key %s revoked\n", args[0])
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	keys, err := store.ListAPIKeys(commandContext(cmd))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "API KEY ID\tNAME\tSECRET ID\tCREATED\tLAST USED\tSTATUS")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt.Valid {
			lastUsed = k.LastUsedAt.Time.UTC().Format(time.RFC3339)
		}
		state := "active"
		if k.RevokedAt.Valid {
			state = "revoked"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			k.ID, k.Name, k.SecretID, k.CreatedAt.UTC().Format(time.RFC3339), lastUsed, state)
	}
	return tw.Flush()
}
