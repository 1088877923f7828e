package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/adapters/hasher"
	"github.com/artpar/pulse/adapters/idgen"
	"github.com/artpar/pulse/adapters/sqlite"
	"github.com/artpar/pulse/app"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage project ingestion keys",
	Long: `Manage Pulse ingestion keys.

Each project can have several keys, for example one per app platform.
The raw key is shown once at creation; only its hash is stored.

Examples:
  pulse keys list app-1
  pulse keys create app-1 --name=ios
  pulse keys revoke key_0190c1d2...`,
}

var keysListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List a project's keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysList,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <project-id>",
	Short: "Create a new ingestion key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

var (
	keyName    string
	keysAssume bool
)

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)

	keysCreateCmd.Flags().StringVar(&keyName, "name", "", "key name (optional)")
	keysRevokeCmd.Flags().BoolVarP(&keysAssume, "yes", "y", false, "revoke without confirmation")
}

// openKeyService opens the configured database and returns a key service on
// it. Callers close the database.
func openKeyService() (*app.KeyService, *sqlite.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	svc := app.NewKeyService(app.KeyDeps{
		Store:  sqlite.NewKeyStore(db),
		Hasher: hasher.NewBcrypt(cfg.Keys.HashCost),
		Clock:  clock.Real{},
		IDGen:  idgen.UUID{Prefix: "key_"},
		Logger: zerolog.Nop(),
	}, 0)
	return svc, db, nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	projectID := args[0]

	svc, db, err := openKeyService()
	if err != nil {
		return err
	}
	defer db.Close()

	keys, err := svc.ListKeys(context.Background(), projectID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Printf("No keys found for project %s.\n", projectID)
		fmt.Println()
		fmt.Printf("Create a key with: pulse keys create %s\n", projectID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPREFIX\tNAME\tSTATUS\tCREATED\tLAST USED")
	fmt.Fprintln(w, "--\t------\t----\t------\t-------\t---------")

	for _, k := range keys {
		status := "active"
		if k.RevokedAt != nil {
			status = "revoked"
		}
		lastUsed := "never"
		if k.LastUsed != nil {
			lastUsed = k.LastUsed.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s...\t%s\t%s\t%s\t%s\n",
			k.ID, k.Prefix, k.Name, status, k.CreatedAt.Format("2006-01-02"), lastUsed)
	}

	w.Flush()
	return nil
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	projectID := args[0]

	svc, db, err := openKeyService()
	if err != nil {
		return err
	}
	defer db.Close()

	rawKey, k, err := svc.CreateKey(context.Background(), projectID, keyName)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	fmt.Printf("%s Created ingestion key for project %s\n", checkMark, projectID)
	fmt.Println()
	fmt.Println("Key (save this, shown once):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Printf("Key ID: %s\n", k.ID)

	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	keyID := args[0]

	svc, db, err := openKeyService()
	if err != nil {
		return err
	}
	defer db.Close()

	if !keysAssume && !confirm(fmt.Sprintf("Revoke key %s?", keyID)) {
		fmt.Println("Aborted.")
		return nil
	}

	if err := svc.RevokeKey(context.Background(), keyID); err != nil {
		return fmt.Errorf("failed to revoke key %s: %w", keyID, err)
	}

	fmt.Printf("%s Revoked key: %s\n", checkMark, keyID)
	return nil
}

func confirm(message string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("? %s [y/N]: ", message)
	input, _ := reader.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}
