package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/datamantri/internal/config"
	"github.com/good-yellow-bee/datamantri/internal/security"
)

var (
	encryptOut    string
	encryptRemove bool
)

// configCmd represents the config command group
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration file commands",
	Long: `Commands for checking and protecting configuration files.

A config file ending in .enc is decrypted with DATAMANTRI_MASTER_KEY when
loaded, so SMTP and Twilio credentials need not sit on disk in clear text.

Examples:
  # Validate the effective configuration
  datamantri config check -c datamantri.yaml

  # Encrypt a config file, producing datamantri.yaml.enc
  datamantri config encrypt datamantri.yaml --remove`,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if _, err := cfg.RequireMasterKey(); err != nil {
			return err
		}

		fmt.Println("Configuration OK")
		fmt.Printf("  %-18s %s\n", "http address:", cfg.Server.HTTPAddress)
		fmt.Printf("  %-18s %s\n", "metrics address:", orDash(cfg.Server.MetricsAddress))
		fmt.Printf("  %-18s %s\n", "database:", cfg.Database.Path)
		fmt.Printf("  %-18s %s\n", "interval:", cfg.Scheduler.Interval)
		fmt.Printf("  %-18s %s\n", "smtp:", configured(cfg.SMTP.Host != "" && cfg.SMTP.Username != ""))
		fmt.Printf("  %-18s %s\n", "twilio:", configured(cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != ""))
		return nil
	},
}

var configEncryptCmd = &cobra.Command{
	Use:   "encrypt <file>",
	Short: "Encrypt a YAML config file with the master key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		if security.IsEncryptedFile(src) {
			return fmt.Errorf("%s is already encrypted", src)
		}

		// Only the environment supplies the key here; the file is the payload.
		cfg, err := config.Load("")
		if err != nil {
			return err
		}
		key, err := cfg.RequireMasterKey()
		if err != nil {
			return err
		}

		plaintext, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read %s: %w", src, err)
		}

		dst := encryptOut
		if dst == "" {
			dst = src
		}
		written, err := security.WriteEncryptedFile(dst, plaintext, key)
		if err != nil {
			return err
		}
		if encryptRemove {
			if err := os.Remove(src); err != nil {
				return fmt.Errorf("remove %s: %w", src, err)
			}
		}

		fmt.Printf("Encrypted %s -> %s\n", src, written)
		return nil
	},
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configEncryptCmd)

	configEncryptCmd.Flags().StringVar(&encryptOut, "out", "", "output path (default: <file>.enc)")
	configEncryptCmd.Flags().BoolVar(&encryptRemove, "remove", false, "delete the plaintext file afterwards")
}
