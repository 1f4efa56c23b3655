package dyapi

import (
	"fmt"
	"strings"

	"github.com/edgeflare/dyapi/pkg/config"
	pg "github.com/edgeflare/dyapi/pkg/pgx"
	"github.com/edgeflare/dyapi/pkg/storage/pgtable"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var tablesApply bool

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print the CREATE TABLE statements of the configured entities",
	Long:  `Prints the DDL of every entity table. With --apply the missing tables are created in the configured database.`,
	Args:  cobra.NoArgs,
	RunE:  runTables,
}

func init() {
	tablesCmd.Flags().BoolVar(&tablesApply, "apply", false, "create missing tables instead of printing them")
	tablesCmd.Flags().StringP("storage.pg.connString", "c", "", "PostgreSQL connection string")
}

func runTables(cmd *cobra.Command, _ []string) error {
	md := pgtable.NewMetadata()
	manager := pgtable.NewManager(nil, md, pgtable.WithSchema(cfg.Storage.Schema), pgtable.WithLogger(logger))
	for _, ec := range cfg.Entities {
		if _, err := manager.Storage(ec); err != nil {
			return err
		}
	}

	if !tablesApply {
		if len(md.Tables()) == 0 {
			return nil
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(md.DDL(), ";\n\n")+";")
		return err
	}

	if cfg.Storage.PG.ConnString == "" {
		return config.ErrNoConnString
	}
	pool, err := pg.Connect(cmd.Context(), pg.PoolConfig{
		ConnString: cfg.Storage.PG.ConnString,
		MaxElapsed: cfg.Storage.PG.ConnectTimeout,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := md.CreateAll(cmd.Context(), pool); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	logger.Info("tables ready", zap.Int("count", len(md.Tables())), zap.String("schema", cfg.Storage.Schema))
	return nil
}
