package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blturner/stardate/internal/ui"
)

const starterConfig = `# stardate configuration

# database_path = "~/.stardate/stardate.db"
# default_backend = "local"
# default_timezone = "UTC"

[log]
level = "info"
# file = "~/.stardate/stardate.log"

# [s3]
# endpoint = "s3.amazonaws.com"
# access_key = ""
# secret_key = ""
# bucket = ""
# use_ssl = true

# [gist]
# id = ""
# token = ""
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Init writes a commented starter config. By default it writes to
~/.config/stardate/stardate.toml, where every command will find it.

Example usage:
  stardate init
  stardate init --path ./stardate.toml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path = filepath.Join(home, ".config", "stardate", "stardate.toml")
		}

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
			return err
		}
		fmt.Printf("%s wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

func init() {
	initCmd.Flags().String("path", "", "where to write the config file")
	rootCmd.AddCommand(initCmd)
}
