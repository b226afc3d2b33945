package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sourcechain/internal/action"
	"github.com/roach88/sourcechain/internal/ir"
)

// CommitResult is the output of the commit command.
type CommitResult struct {
	EntryAddress  ir.Address     `json:"entry_address"`
	HeaderAddress ir.Address     `json:"header_address"`
	Header        ir.ChainHeader `json:"header"`
}

func (r CommitResult) Text() string {
	return fmt.Sprintf("committed %s entry %s\nheader %s", r.Header.EntryType, r.EntryAddress, r.HeaderAddress)
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "commit <entry-type> <content>",
		Short: "Append an entry to the chain",
		Long: `Append an entry to the chain through the action dispatch bridge.

The entry is stored in the CAS, a header linking it to the previous head
(and to the previous header of the same type) is created, and the head
advances to the new header.

Examples:
  sourcechain commit post "hello world"
  sourcechain --config chain.yaml commit profile '{"name":"ada"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(commandContext(cmd), rootOpts, cmd, ir.NewEntry(args[0], args[1]))
		},
	}
}

func runCommit(ctx context.Context, opts *RootOptions, cmd *cobra.Command, entry ir.Entry) error {
	if err := entry.Validate(); err != nil {
		return WrapExitError(ExitCommandError, ErrCodeAction, "invalid entry", err)
	}

	return withSession(ctx, opts, func(s *session) error {
		resp, err := s.dispatcher().Dispatch(ctx, action.Commit{Entry: entry})
		if err != nil {
			return dispatchError("commit failed", err)
		}
		if resp.Err != nil {
			return WrapExitError(ExitFailure, ErrCodeAction, "commit failed", resp.Err)
		}

		result := CommitResult{EntryAddress: resp.Address}
		if resp.Header != nil {
			result.Header = *resp.Header
			result.HeaderAddress = resp.Header.MustAddress()
		}
		return opts.formatter(cmd).Success(result)
	})
}
