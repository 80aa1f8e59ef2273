package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"peerlink/auth"
	"peerlink/config"
	"peerlink/storage"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserAddCommand())
	return cmd
}

func newUserAddCommand() *cobra.Command {
	var username, realname, password string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, dataDir, err := config.LoadOrCreate()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, _, err := storage.Open(dataDir)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer store.Close()

			user, err := auth.NewAuthenticator(store, nil, 0).Register(cmd.Context(), username, realname, password)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %q with id %d\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&realname, "realname", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
