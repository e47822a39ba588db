// Command bioxctl signs and submits research program instructions through a biox
// API server and reads back the records they produce.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/malbeclabs/biox/sdk/go/biox"
)

// version is set at build time via ldflags.
var version = "dev"

const defaultAPIURL = "http://localhost:8080"

var rootCmd = &cobra.Command{
	Use:           "bioxctl",
	Short:         "Submit and inspect research funding transactions",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `bioxctl drives the research funding program through a biox API server.

Transactions are signed locally with a keypair file in the solana-keygen JSON
format. Settings come from flags, BIOX_* environment variables or
~/.config/bioxctl/config.yaml (api-url, keypair).`,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./bioxctl.yaml or ~/.config/bioxctl/config.yaml)")
	flags.String("api-url", defaultAPIURL, "biox API base URL (or set BIOX_API_URL)")
	flags.String("keypair", defaultKeypairPath(), "signing keypair file (or set BIOX_KEYPAIR)")
	flags.Bool("json", false, "print raw JSON")

	for _, name := range []string{"api-url", "keypair", "json"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version of bioxctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bioxctl %s\n", version)
		},
	})
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bioxctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "bioxctl"))
		}
	}

	viper.SetEnvPrefix("BIOX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newClient discovers the deployment from the API and returns a client for it.
func newClient(ctx context.Context) (*biox.Client, error) {
	backend := biox.NewHTTPBackend(viper.GetString("api-url"), nil)
	program, err := backend.Program(ctx)
	if err != nil {
		return nil, err
	}
	return biox.New(biox.Config{Backend: backend, Program: program})
}

func loadKeypair() (solana.PrivateKey, error) {
	path := viper.GetString("keypair")
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return key, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
