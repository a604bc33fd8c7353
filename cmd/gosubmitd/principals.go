package main

import (
	"fmt"
	"time"

	"github.com/MrEthical07/goSubmit/credential"
	"github.com/spf13/cobra"
)

func principalsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principals",
		Short: "Manage sending principals",
	}
	cmd.AddCommand(principalsAddCmd(opts))
	return cmd
}

func principalsAddCmd(opts *globalOptions) *cobra.Command {
	var (
		id          string
		orgID       string
		status      string
		displayName string
	)

	cmd := &cobra.Command{
		Use:   "add [address]",
		Short: "Register an inbox principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			if !credential.IsAddress(address) {
				return fmt.Errorf("%q is not an email address", address)
			}
			if id == "" {
				generated, err := credential.NewPrincipalID()
				if err != nil {
					return err
				}
				id = generated
			}
			if !credential.ValidPrincipalID(id) {
				return fmt.Errorf("%q is not a valid principal id", id)
			}

			st := credential.Status(status)
			switch st {
			case credential.StatusActive, credential.StatusDisabled, credential.StatusSuspended:
			default:
				return fmt.Errorf("unknown status %q", status)
			}

			store, err := credentialStore(opts)
			if err != nil {
				return err
			}
			if err := store.PutPrincipal(cmd.Context(), &credential.Principal{
				ID:          id,
				Address:     address,
				OrgID:       orgID,
				Status:      st,
				DisplayName: displayName,
				CreatedAt:   time.Now().UTC(),
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "principal_id: %s\naddress: %s\n", id, address)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "principal id (default: generated inb_ token)")
	cmd.Flags().StringVar(&orgID, "org", "", "owning organization")
	cmd.Flags().StringVar(&displayName, "name", "", "display name")
	cmd.Flags().StringVar(&status, "status", string(credential.StatusActive), "active, disabled or suspended")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
