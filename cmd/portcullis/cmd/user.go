package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jmcleod/portcullis/credential"
	"github.com/jmcleod/portcullis/internal/server"
	"github.com/jmcleod/portcullis/internal/util"
	"github.com/jmcleod/portcullis/login"
)

var (
	userPassword        string
	userGenerate        bool
	userRequireRotation bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Inspect and recover admin credentials",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored principals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *server.App) error {
			return listUsers(ctx, cmd.OutOrStdout(), app.Store)
		})
	},
}

var userSetPasswordCmd = &cobra.Command{
	Use:   "set-password <username>",
	Short: "Set a principal's password, creating the principal if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userGenerate == (userPassword != "") {
			return errors.New("exactly one of --password or --generate is required")
		}
		password := userPassword
		mustChange := userRequireRotation
		if userGenerate {
			generated, err := util.RandomChars(16)
			if err != nil {
				return err
			}
			password = generated
			mustChange = true
		}
		if len([]rune(password)) < login.MinPasswordLength {
			return fmt.Errorf("password must be at least %d characters", login.MinPasswordLength)
		}
		return withApp(cmd, func(ctx context.Context, app *server.App) error {
			key := credential.NormalizeKey(args[0], app.Config.Auth.DefaultUsername)
			if err := setPassword(ctx, app.Store, app.Hasher, key, password, mustChange, time.Now().UTC()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s password updated for %s\n", color.GreenString("ok"), key)
			if userGenerate {
				fmt.Fprintf(out, "temporary password: %s\n", color.New(color.Bold).Sprint(password))
			}
			if mustChange {
				fmt.Fprintln(out, color.YellowString("the password must be changed at next login"))
			}
			return nil
		})
	},
}

var userRequireRotationCmd = &cobra.Command{
	Use:   "require-rotation <username>",
	Short: "Force a principal to change password at next login",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *server.App) error {
			key := credential.NormalizeKey(args[0], app.Config.Auth.DefaultUsername)
			if _, err := app.Store.Get(ctx, key); err != nil {
				return err
			}
			now := time.Now().UTC()
			mustChange := true
			if _, err := app.Store.Update(ctx, key, credential.Patch{MustChangePassword: &mustChange, UpdatedAt: &now}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s must change password at next login\n", color.GreenString("ok"), key)
			return nil
		})
	},
}

func withApp(cmd *cobra.Command, fn func(context.Context, *server.App) error) error {
	cfg, logger, err := loadConfig(nil)
	if err != nil {
		return err
	}
	app, err := server.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(cmd.Context(), app)
}

func listUsers(ctx context.Context, w io.Writer, store *credential.Store) error {
	keys, err := store.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tROTATION\tLAST LOGIN\tUPDATED")
	for _, key := range keys {
		rec, err := store.Get(ctx, key)
		if err != nil {
			slog.Warn("skipping unreadable credential", "key", key, "error", err)
			continue
		}
		rotation := "-"
		if rec.MustChangePassword {
			rotation = color.YellowString("required")
		}
		lastLogin := "never"
		if rec.LastLoginAt != nil {
			lastLogin = rec.LastLoginAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Username, rotation, lastLogin, rec.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func setPassword(ctx context.Context, store *credential.Store, hasher credential.Hasher, key, password string, mustChange bool, now time.Time) error {
	digest, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	err = store.Create(ctx, &credential.Record{
		Username:           key,
		PasswordHash:       digest,
		MustChangePassword: mustChange,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if !errors.Is(err, credential.ErrExists) {
		return err
	}
	_, err = store.Update(ctx, key, credential.Patch{
		PasswordHash:       &digest,
		MustChangePassword: &mustChange,
		UpdatedAt:          &now,
	})
	return err
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userListCmd, userSetPasswordCmd, userRequireRotationCmd)
	userSetPasswordCmd.Flags().StringVar(&userPassword, "password", "", "New password")
	userSetPasswordCmd.Flags().BoolVar(&userGenerate, "generate", false, "Generate a temporary password and require rotation")
	userSetPasswordCmd.Flags().BoolVar(&userRequireRotation, "require-rotation", false, "Require a password change at next login")
}
