package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/portcullis/internal/config"
	"github.com/jmcleod/portcullis/internal/util"
)

var secretBytes int

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Session secret tools",
}

var secretGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print a random session secret",
	Long: fmt.Sprintf(`Print a random base64url session secret suitable for %s.
The same value must be given to the server and to every gate.`, config.SecretEnvVar),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if secretBytes < config.MinSecretLength {
			return fmt.Errorf("--bytes must be at least %d", config.MinSecretLength)
		}
		secret, err := util.RandomSecret(secretBytes)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretGenerateCmd)
	secretGenerateCmd.Flags().IntVar(&secretBytes, "bytes", 32, "Number of random bytes")
}
