package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/radiola/internal/legacy"
	"github.com/franz/radiola/internal/puller"
	"github.com/franz/radiola/internal/remote"
	"github.com/franz/radiola/internal/store"
	"github.com/franz/radiola/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "radiola",
		Short: "Local-first client for the radio4000 catalogue",
		Long: `radiola keeps a local SQLite mirror of the radio4000 catalogue.

Reads are resolved cache-first, falling back to the authoritative remote
API and finally to the frozen v1 archive. Writes are staged or queued
locally and replayed against the remote, so the client stays usable
offline.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./radiola.yaml)")
	rootCmd.PersistentFlags().String("db", "radiola.db", "catalogue database file")
	rootCmd.PersistentFlags().String("remote-url", remote.DefaultBaseURL, "remote API base URL")
	rootCmd.PersistentFlags().String("legacy-url", legacy.DefaultArchiveURL, "legacy archive export URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token for remote writes")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("remote_url", rootCmd.PersistentFlags().Lookup("remote-url"))
	viper.BindPFlag("legacy_url", rootCmd.PersistentFlags().Lookup("legacy-url"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/radiola")
		viper.SetConfigName("radiola")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("RADIOLA")
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

// applyLogFlags must run inside RunE, after cobra parsed the flags
func applyLogFlags() {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
}

func openStore() (*store.Store, error) {
	dbPath := viper.GetString("db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	return db, nil
}

func newRemoteClient() *remote.Client {
	var opts []remote.Option
	if token := viper.GetString("token"); token != "" {
		opts = append(opts, remote.WithToken(token))
	}
	return remote.NewClient(viper.GetString("remote_url"), opts...)
}

func newLegacyArchive() *legacy.Archive {
	return legacy.New(viper.GetString("legacy_url"))
}

func newPuller(db *store.Store, progress func(done, total int)) *puller.Puller {
	return puller.New(&puller.Config{
		Store:    db,
		Remote:   newRemoteClient(),
		Legacy:   newLegacyArchive(),
		Progress: progress,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
