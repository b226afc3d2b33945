package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sourcechain/internal/chain"
	"github.com/roach88/sourcechain/internal/ir"
)

// ExportResult is printed when the export goes to a file.
type ExportResult struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
	Bytes   int    `json:"bytes"`
}

func (r ExportResult) Text() string {
	return fmt.Sprintf("exported %d records (%d bytes) to %s", r.Records, r.Bytes, r.Path)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the chain as JSON",
		Long: `Write the chain as a head-first JSON array of {header, entry} records.
Absent links are written as null.

Without --out the JSON is written to stdout as-is, regardless of --format.

Examples:
  sourcechain export > chain.json
  sourcechain export --out chain.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return withSession(ctx, rootOpts, func(s *session) error {
				records, err := s.chain.Records(ctx)
				if err != nil {
					return chainError("export failed", err)
				}
				data, err := s.chain.Export(ctx)
				if err != nil {
					return chainError("export failed", err)
				}

				if out == "" {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return WrapExitError(ExitCommandError, ErrCodeWriteFailed, "failed to write export", err)
				}
				return rootOpts.formatter(cmd).Success(ExportResult{Path: out, Records: len(records), Bytes: len(data)})
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

// ImportResult is the output of the import command.
type ImportResult struct {
	Records int         `json:"records"`
	Head    *ir.Address `json:"head"`
}

func (r ImportResult) Text() string {
	return fmt.Sprintf("imported %d records, head %s", r.Records, optional(r.Head))
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Rebuild an exported chain",
		Long: `Rebuild a chain from an export file. The configured chain must be empty.

Every header is rebuilt from its entry, timestamp and signature and must
match the exported header exactly.

Exit codes:
  0 - Imported
  1 - The export does not reproduce, or the chain is not empty
  2 - The file cannot be read or the store cannot be opened`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeImport, "failed to read import file", err)
			}

			return withSession(ctx, rootOpts, func(s *session) error {
				imported, err := chain.Import(ctx, s.store, s.head, data, s.chainOpts...)
				if err != nil {
					if errors.Is(err, chain.ErrImportNotEmpty) || errors.Is(err, chain.ErrImportMismatch) ||
						errors.Is(err, chain.ErrEntryAddressMismatch) || errors.Is(err, chain.ErrEntryTypeMismatch) {
						return WrapExitError(ExitFailure, ErrCodeImport, "import rejected", err)
					}
					return chainError("import failed", err)
				}
				headers, err := imported.Headers(ctx)
				if err != nil {
					return chainError("import failed", err)
				}
				head, err := s.head.Get(ctx)
				if err != nil {
					return chainError("import failed", err)
				}
				return rootOpts.formatter(cmd).Success(ImportResult{Records: len(headers), Head: head})
			})
		},
	}
}
