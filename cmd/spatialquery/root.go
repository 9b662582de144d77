package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jobrunner/spatialquery/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "spatialquery",
	Short: "GeoPackage spatial relation query service",
	Long: `spatialquery answers topological relation queries between two vector layers.

Given a target layer, a reference layer and a relation such as within,
intersects or disjoint, it returns the target features that satisfy the
relation against at least one reference feature (none, for disjoint).

Without a subcommand it serves the query API over HTTP. GeoPackages are
read from local disk, AWS S3, Azure Blob Storage or an HTTP server, and
local directories are watched for changes.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runServer,
}

// flagBinding maps a command line flag to its configuration key.
type flagBinding struct {
	key   string
	flags func() *pflag.FlagSet
	name  string
}

var bindings = []flagBinding{
	{"logging.level", rootCmd.PersistentFlags, "log-level"},
	{"logging.format", rootCmd.PersistentFlags, "log-format"},
	{"query.strict_relations", rootCmd.PersistentFlags, "strict-relations"},
	{"query.reprojection", rootCmd.PersistentFlags, "reprojection"},
	{"server.host", rootCmd.Flags, "host"},
	{"server.port", rootCmd.Flags, "port"},
	{"server.cors.allowed_origins", rootCmd.Flags, "cors"},
	{"tls.enabled", rootCmd.Flags, "tls"},
	{"tls.domains", rootCmd.Flags, "tls-domains"},
	{"tls.email", rootCmd.Flags, "tls-email"},
	{"storage.type", rootCmd.Flags, "storage-type"},
	{"storage.local_path", rootCmd.Flags, "storage-path"},
	{"storage.sync_interval", rootCmd.Flags, "sync-interval"},
}

func init() {
	cobra.OnInitialize(initConfig)

	global := rootCmd.PersistentFlags()
	global.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	global.String("log-level", "info", "log level (debug, info, warn, error)")
	global.String("log-format", "json", "log format (json, text, console)")
	global.Bool("strict-relations", false, "reject relations not applicable to the layer geometry types")
	global.Duration("query-timeout", 0, "upper bound for a single query (0 keeps the configured value)")
	global.Bool("reprojection", true, "reproject between SRIDs with SpatiaLite")

	serve := rootCmd.Flags()
	serve.String("host", "0.0.0.0", "server host")
	serve.Int("port", 8080, "server port")
	serve.StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")
	serve.Bool("tls", false, "enable TLS")
	serve.StringSlice("tls-domains", nil, "TLS domains")
	serve.String("tls-email", "", "TLS email for Let's Encrypt")
	serve.String("storage-type", "local", "storage type (local, s3, azure, http)")
	serve.String("storage-path", "./data", "local storage path")
	serve.Duration("sync-interval", 0, "periodic storage sync interval (0 disables)")

	for _, b := range bindings {
		_ = viper.BindPFlag(b.key, b.flags().Lookup(b.name))
	}

	rootCmd.AddCommand(versionCmd, queryCmd, relationsCmd)
}

func initConfig() {
	config.Defaults()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig reads the configuration. The query timeout flag only overrides
// the file when set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if timeout, _ := cmd.Flags().GetDuration("query-timeout"); timeout > 0 {
		cfg.Query.Timeout = timeout
	}
	return cfg, nil
}
