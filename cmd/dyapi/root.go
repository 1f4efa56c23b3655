package dyapi

import (
	"fmt"
	"os"
	"strings"

	"github.com/edgeflare/dyapi/pkg/config"
	pg "github.com/edgeflare/dyapi/pkg/pgx"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/edgeflare/dyapi/pkg/storage/memory"
	"github.com/edgeflare/dyapi/pkg/storage/pgtable"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string
var logLevel string
var cfg *config.Config
var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "dyapi",
	Short: "dyapi serves CRUD APIs generated from entity definitions",
	Long: `dyapi reads entity definitions from its config file and serves a
create/list/get/update/delete API for each of them, backed by PostgreSQL
tables or an in-memory store.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
			return
		}
		cmd.Help()
	},
}

func Main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dyapi.yaml or ./dyapi.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().String("storage.backend", "", "storage backend (table, memory)")
	rootCmd.PersistentFlags().String("storage.schema", "", "PostgreSQL schema holding the entity tables")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")

	rootCmd.AddCommand(serveCmd, openapiCmd, tablesCmd)
}

func initConfig(cmd *cobra.Command, _ []string) error {
	var err error
	if logger, err = newLogger(logLevel); err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)

	if cfg, err = config.Load(cfgFile, cmd.Flags()); err != nil {
		return err
	}
	if cfg.File != "" {
		logger.Info("using config file", zap.String("file", cfg.File))
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "none") {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// storageManager returns the manager of the configured backend. conn may be
// nil for commands that never touch the database.
func storageManager(conn pg.Conn) storage.Manager {
	if cfg.Storage.Backend == config.BackendMemory {
		return memory.NewManager()
	}
	return pgtable.NewManager(conn, nil,
		pgtable.WithSchema(cfg.Storage.Schema),
		pgtable.WithLogger(logger),
	)
}
