package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sourcechain/internal/action"
	"github.com/roach88/sourcechain/internal/ir"
)

// LinkResult is the output of the link command.
type LinkResult struct {
	Base    ir.Address   `json:"base"`
	Tag     string       `json:"tag"`
	Targets []ir.Address `json:"targets"`
}

func (r LinkResult) Text() string {
	if len(r.Targets) == 0 {
		return fmt.Sprintf("no links from %s tagged %q", r.Base, r.Tag)
	}
	lines := make([]string, 0, len(r.Targets)+1)
	lines = append(lines, fmt.Sprintf("links from %s tagged %q:", r.Base, r.Tag))
	for _, t := range r.Targets {
		lines = append(lines, "  "+t.String())
	}
	return strings.Join(lines, "\n")
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "link <base> [target...]",
		Short: "Add links from an entry and list them",
		Long: `Dispatch add_link for each target, then get_links for (base, tag), and
print the resulting targets.

Links are process state: they last for one invocation and are not written
to the store. The base must be an entry already in the store.

Examples:
  sourcechain link <base> <target1> <target2> --tag reply
  sourcechain link <base> --tag reply`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			base := ir.Address(args[0])

			return withSession(ctx, rootOpts, func(s *session) error {
				d := s.dispatcher()
				for _, target := range args[1:] {
					resp, err := d.Dispatch(ctx, action.AddLink{Base: base, Target: ir.Address(target), Tag: tag})
					if err != nil {
						return dispatchError("add link failed", err)
					}
					if resp.Err != nil {
						return WrapExitError(ExitFailure, ErrCodeAction, "add link failed", resp.Err)
					}
				}

				resp, err := d.Dispatch(ctx, action.GetLinks{Base: base, Tag: tag})
				if err != nil {
					return dispatchError("get links failed", err)
				}
				if resp.Err != nil {
					return WrapExitError(ExitFailure, ErrCodeAction, "get links failed", resp.Err)
				}
				return rootOpts.formatter(cmd).Success(LinkResult{Base: base, Tag: tag, Targets: resp.Links})
			})
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "link tag (required)")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}
