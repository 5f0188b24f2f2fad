// Package cli implements the microsplit command-line client.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/btcsuite/btcutil/base58"
	"github.com/spf13/cobra"

	"github.com/mmynk/microsplit/internal/auth"
	"github.com/mmynk/microsplit/pkg/api"
)

type options struct {
	server    string
	keyPath   string
	tokenPath string
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".microsplit"
	}
	return filepath.Join(home, ".microsplit")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewRootCommand builds the microsplit command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "microsplit",
		Short:         "Create, pay and close bill splits on a MicroSplit ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	dir := defaultDir()
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("MICROSPLIT_SERVER", "http://localhost:8080"), "ledger server URL")
	root.PersistentFlags().StringVar(&opts.keyPath, "key", filepath.Join(dir, "key"), "private key file")
	root.PersistentFlags().StringVar(&opts.tokenPath, "token", filepath.Join(dir, "token"), "session token file")

	root.AddCommand(
		newKeygenCommand(opts),
		newLoginCommand(opts),
		newCreateCommand(opts),
		newPayCommand(opts),
		newCloseCommand(opts),
		newGetCommand(opts),
		newBalanceCommand(opts),
	)
	return root
}

// client returns an API client carrying the saved session token, if any.
func (o *options) client() (*api.Client, error) {
	c := api.NewClient(http.DefaultClient, o.server)
	token, err := readToken(o.tokenPath)
	if err != nil {
		return nil, err
	}
	c.SetToken(token)
	return c, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe adds the ledger code to server errors.
func describe(err error) error {
	if code := api.ErrorCode(err); code != "" {
		return fmt.Errorf("%s: %w", code, err)
	}
	return err
}

func newKeygenCommand(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := generateKey(opts.keyPath, force)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}

func newLoginCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign a login challenge and save the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, id, err := loadKey(opts.keyPath)
			if err != nil {
				return err
			}
			c := api.NewClient(http.DefaultClient, opts.server)
			ctx := cmd.Context()

			challenge, err := c.Challenge(ctx, &api.ChallengeRequest{Identity: id.String()})
			if err != nil {
				return describe(err)
			}
			res, err := c.Login(ctx, &api.LoginRequest{
				Identity:  id.String(),
				Nonce:     challenge.Nonce,
				Signature: base58.Encode(auth.SignLogin(priv, challenge.Nonce)),
			})
			if err != nil {
				return describe(err)
			}
			if err := writeSecret(opts.tokenPath, res.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", id)
			return nil
		},
	}
}

func newCreateCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "create <split-id> <total> <participant>...",
		Short: "Create a split owned by you",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid total %q: %w", args[1], err)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.CreateSplit(cmd.Context(), &api.CreateSplitRequest{
				SplitID:      args[0],
				TotalAmount:  total,
				Participants: args[2:],
				Address:      addr,
			})
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd, res.Split)
		},
	}
	cmd.Flags().StringVar(&addr, "address", "", "expected split address")
	return cmd
}

func refCommand(opts *options, use, short string, call func(context.Context, *api.Client, api.SplitRef) (*api.Split, error)) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			split, err := call(cmd.Context(), c, api.SplitRef{Creator: args[0], SplitID: args[1], Address: addr})
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd, split)
		},
	}
	cmd.Flags().StringVar(&addr, "address", "", "expected split address")
	return cmd
}

func newPayCommand(opts *options) *cobra.Command {
	return refCommand(opts, "pay <creator> <split-id>", "Pay your share of a split",
		func(ctx context.Context, c *api.Client, ref api.SplitRef) (*api.Split, error) {
			res, err := c.PaySplit(ctx, &api.PaySplitRequest{SplitRef: ref})
			if err != nil {
				return nil, err
			}
			return res.Split, nil
		})
}

func newCloseCommand(opts *options) *cobra.Command {
	return refCommand(opts, "close <creator> <split-id>", "Close a fully paid split you created",
		func(ctx context.Context, c *api.Client, ref api.SplitRef) (*api.Split, error) {
			res, err := c.CloseSplit(ctx, &api.CloseSplitRequest{SplitRef: ref})
			if err != nil {
				return nil, err
			}
			return res.Split, nil
		})
}

func newGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <address>",
		Short: "Show a split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.GetSplit(cmd.Context(), &api.GetSplitRequest{Address: args[0]})
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd, res.Split)
		},
	}
}

func newBalanceCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [identity]",
		Short: "Show a balance (default: your own)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var identity string
			if len(args) == 1 {
				identity = args[0]
			} else {
				_, id, err := loadKey(opts.keyPath)
				if err != nil {
					return err
				}
				identity = id.String()
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.GetBalance(cmd.Context(), &api.GetBalanceRequest{Identity: identity})
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Balance)
			return nil
		},
	}
}
