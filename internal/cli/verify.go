package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/sourcechain/internal/ir"
)

// VerifyResult is the output of the verify command.
type VerifyResult struct {
	Valid   bool        `json:"valid"`
	Headers int         `json:"headers"`
	Head    *ir.Address `json:"head"`
}

func (r VerifyResult) Text() string {
	return fmt.Sprintf("chain ok: %d headers, head %s", r.Headers, optional(r.Head))
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every link of the chain",
		Long: `Walk the chain from head to genesis and check that every header's entry
is present with the header's type, every same-type link points at the
nearest earlier header of that type, and signatures verify when a signer
is configured.

Exit codes:
  0 - Chain is consistent
  1 - Consistency violation
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return withSession(ctx, rootOpts, func(s *session) error {
				if err := s.chain.Verify(ctx); err != nil {
					return chainError("verification failed", err)
				}
				headers, err := s.chain.Headers(ctx)
				if err != nil {
					return chainError("verification failed", err)
				}
				head, err := s.head.Get(ctx)
				if err != nil {
					return chainError("verification failed", err)
				}
				return rootOpts.formatter(cmd).Success(VerifyResult{Valid: true, Headers: len(headers), Head: head})
			})
		},
	}
}

// StatsResult is the output of the stats command.
type StatsResult struct {
	Chain   string         `json:"chain"`
	Backend string         `json:"backend"`
	Head    *ir.Address    `json:"head"`
	Headers int            `json:"headers"`
	Objects int            `json:"objects"`
	Types   map[string]int `json:"types"`
}

func (r StatsResult) Text() string {
	s := fmt.Sprintf("chain    %s\nbackend  %s\nhead     %s\nheaders  %d\nobjects  %d",
		r.Chain, r.Backend, optional(r.Head), r.Headers, r.Objects)
	for _, t := range slices.Sorted(maps.Keys(r.Types)) {
		s += fmt.Sprintf("\n  %-12s %d", t, r.Types[t])
	}
	return s
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Summarize the chain and its store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return withSession(ctx, rootOpts, func(s *session) error {
				headers, err := s.chain.Headers(ctx)
				if err != nil {
					return chainError("failed to read chain", err)
				}
				objects, err := s.store.Count(ctx)
				if err != nil {
					return chainError("failed to count objects", err)
				}
				head, err := s.head.Get(ctx)
				if err != nil {
					return chainError("failed to read head", err)
				}

				types := make(map[string]int)
				for _, h := range headers {
					types[h.EntryType]++
				}
				return rootOpts.formatter(cmd).Success(StatsResult{
					Chain:   s.head.Name(),
					Backend: s.store.Backend(),
					Head:    head,
					Headers: len(headers),
					Objects: objects,
					Types:   types,
				})
			})
		},
	}
}
