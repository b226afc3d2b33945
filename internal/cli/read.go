package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sourcechain/internal/ir"
)

// HeaderView is a header together with its own address.
type HeaderView struct {
	Address ir.Address     `json:"address"`
	Header  ir.ChainHeader `json:"header"`
}

func newHeaderView(h ir.ChainHeader) HeaderView {
	return HeaderView{Address: h.MustAddress(), Header: h}
}

func (v HeaderView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "header %s\n", v.Address)
	fmt.Fprintf(&b, "  type       %s\n", v.Header.EntryType)
	fmt.Fprintf(&b, "  entry      %s\n", v.Header.EntryAddress)
	fmt.Fprintf(&b, "  timestamp  %s\n", v.Header.Timestamp)
	fmt.Fprintf(&b, "  link       %s\n", optional(v.Header.Link))
	fmt.Fprintf(&b, "  same type  %s", optional(v.Header.LinkSameType))
	if v.Header.Signature != "" {
		fmt.Fprintf(&b, "\n  signature  %s", v.Header.Signature)
	}
	return b.String()
}

func optional(a *ir.Address) string {
	if a == nil {
		return "-"
	}
	return a.String()
}

// TopResult is the output of the top command.
type TopResult struct {
	Found  bool        `json:"found"`
	Header *HeaderView `json:"top,omitempty"`
}

func (r TopResult) Text() string {
	if !r.Found {
		return "chain is empty"
	}
	return r.Header.Text()
}

// NewTopCommand creates the top command.
func NewTopCommand(rootOpts *RootOptions) *cobra.Command {
	var entryType string

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the chain head",
		Long: `Show the newest header of the chain, or with --type the newest header
whose entry has that type.

Examples:
  sourcechain top
  sourcechain top --type post --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return withSession(ctx, rootOpts, func(s *session) error {
				var (
					h     ir.ChainHeader
					found bool
					err   error
				)
				if entryType != "" {
					h, found, err = s.chain.TopHeaderOfType(ctx, entryType)
				} else {
					h, found, err = s.chain.TopHeader(ctx)
				}
				if err != nil {
					return chainError("failed to read head", err)
				}
				result := TopResult{Found: found}
				if found {
					v := newHeaderView(h)
					result.Header = &v
				}
				return rootOpts.formatter(cmd).Success(result)
			})
		},
	}

	cmd.Flags().StringVarP(&entryType, "type", "t", "", "newest header of this entry type")
	return cmd
}

// LogResult is the output of the log command.
type LogResult struct {
	Headers []HeaderView `json:"headers"`
}

func (r LogResult) Text() string {
	if len(r.Headers) == 0 {
		return "chain is empty"
	}
	lines := make([]string, 0, len(r.Headers))
	for _, v := range r.Headers {
		lines = append(lines, fmt.Sprintf("%s  %-12s %s  %s",
			short(v.Address), v.Header.EntryType, short(v.Header.EntryAddress), v.Header.Timestamp))
	}
	return strings.Join(lines, "\n")
}

func short(a ir.Address) string {
	if len(a) <= 12 {
		return string(a)
	}
	return string(a[:12])
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List headers from head to genesis",
		Long: `List the chain's headers newest first.

Examples:
  sourcechain log
  sourcechain log -n 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return withSession(ctx, rootOpts, func(s *session) error {
				result, err := readLog(ctx, s, limit)
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(result)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many headers (0 for all)")
	return cmd
}

// readLog walks the chain with its iterator. A broken link surfaces as a
// consistency error instead of a panic.
func readLog(ctx context.Context, s *session, limit int) (result LogResult, err error) {
	it, err := s.chain.Iter(ctx)
	if err != nil {
		return LogResult{}, chainError("failed to read chain", err)
	}
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = chainError("chain is broken", rerr)
		}
	}()

	result.Headers = []HeaderView{}
	for h := range it.All() {
		result.Headers = append(result.Headers, newHeaderView(h))
		if limit > 0 && len(result.Headers) == limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return LogResult{}, chainError("failed to read chain", err)
	}
	return result, nil
}

// GetResult is the output of the get command. Exactly one of Entry and
// Header is set.
type GetResult struct {
	Address ir.Address      `json:"address"`
	Kind    string          `json:"kind"`
	Entry   *ir.Entry       `json:"entry,omitempty"`
	Header  *ir.ChainHeader `json:"header,omitempty"`
}

func (r GetResult) Text() string {
	if r.Entry != nil {
		return fmt.Sprintf("entry %s\n  type     %s\n  content  %s", r.Address, r.Entry.EntryType, r.Entry.Content)
	}
	return HeaderView{Address: r.Address, Header: *r.Header}.Text()
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <address>",
		Short: "Show the entry or header stored at an address",
		Long: `Look up an address in the content store and show what is stored there:
an entry or a chain header.

Exit codes:
  0 - Found
  1 - Nothing is stored at the address`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			addr := ir.Address(args[0])
			return withSession(ctx, rootOpts, func(s *session) error {
				data, found, err := s.store.Get(ctx, addr)
				if err != nil {
					return chainError("failed to read store", err)
				}
				if !found {
					return NewExitError(ExitFailure, ErrCodeNotFound, fmt.Sprintf("nothing stored at %s", addr))
				}
				if e, err := ir.DecodeEntry(data); err == nil {
					return rootOpts.formatter(cmd).Success(GetResult{Address: addr, Kind: "entry", Entry: &e})
				}
				h, err := ir.DecodeHeader(data)
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "stored object is neither an entry nor a header", err)
				}
				return rootOpts.formatter(cmd).Success(GetResult{Address: addr, Kind: "header", Header: &h})
			})
		},
	}
}
