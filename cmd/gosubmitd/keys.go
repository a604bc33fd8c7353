package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSubmit/credential"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
)

func keysCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API-key credentials",
	}
	cmd.AddCommand(keysIssueCmd(opts), keysRevokeCmd(opts))
	return cmd
}

func credentialStore(opts *globalOptions) (*credential.RedisStore, error) {
	hasher, err := credential.NewHasher(credential.DefaultHasherConfig())
	if err != nil {
		return nil, err
	}
	return credential.NewRedisStore(opts.client, opts.prefix, hasher), nil
}

func keysIssueCmd(opts *globalOptions) *cobra.Command {
	var (
		orgID  string
		name   string
		scopes []string
		ttl    time.Duration
		length int
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Generate a secret and store its hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(orgID) == "" {
				return fmt.Errorf("--org is required")
			}
			store, err := credentialStore(opts)
			if err != nil {
				return err
			}

			secret, err := credential.NewSecret(length)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			c := &credential.Credential{
				ID:        "cred_" + ulid.Make().String(),
				OrgID:     orgID,
				Scopes:    scopes,
				Name:      name,
				CreatedAt: now,
			}
			if ttl > 0 {
				exp := now.Add(ttl)
				c.ExpiresAt = &exp
			}
			if err := store.PutCredential(cmd.Context(), secret, c); err != nil {
				return err
			}

			// The secret is shown once; only its hash is stored.
			fmt.Fprintf(cmd.OutOrStdout(), "credential_id: %s\nsecret: %s\n", c.ID, secret)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "organization the credential belongs to")
	cmd.Flags().StringVar(&name, "name", "", "human-readable label")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{"smtp"}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expiry from now; zero never expires")
	cmd.Flags().IntVar(&length, "length", credential.DefaultSecretLength, "random characters after the prefix")
	return cmd
}

func keysRevokeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke [credential-id]",
		Short: "Mark a credential revoked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentialStore(opts)
			if err != nil {
				return err
			}
			if err := store.RevokeCredential(cmd.Context(), args[0], time.Now().UTC()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
}
