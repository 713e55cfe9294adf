package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/matcher"
	"github.com/freewebtopdf/logfilters/internal/workingset"
)

// maxLineSize bounds a single line read by match
const maxLineSize = 1024 * 1024

func parseIndex(name, arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, domain.NewAppError(domain.ErrInvalidInput, fmt.Sprintf("Invalid %s %q", name, arg), 400, nil)
	}
	return i, nil
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the filters in matching order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRenderer(cmd.OutOrStdout())
			return opts.view(cmd, func(set *workingset.WorkingSet) error {
				entries := set.Entries()
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No filters")
					return nil
				}
				for _, e := range entries {
					fmt.Fprintln(cmd.OutOrStdout(), entryLine(r, set.Registry(), e))
				}
				return nil
			})
		},
	}
}

func newSourcesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the filter files filters are imported from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRenderer(cmd.OutOrStdout())
			return opts.view(cmd, func(set *workingset.WorkingSet) error {
				summaries := set.Registry().Summaries()
				if len(summaries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No filter sources")
					return nil
				}
				for _, s := range summaries {
					fmt.Fprintln(cmd.OutOrStdout(), sourceLine(r, s, set.SourceModified(s.ID)))
				}
				return nil
			})
		},
	}
}

func newAddCmd(opts *options) *cobra.Command {
	var (
		foreground string
		background string
		ignoreCase bool
	)

	cmd := &cobra.Command{
		Use:   "add [pattern]",
		Short: "Append a filter",
		Long: `Append a filter to the end of the list. Without a pattern the filter
gets the default pattern and colors.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := domain.NewStyledRule(domain.DefaultPattern, ignoreCase, strings.TrimSpace(foreground), strings.TrimSpace(background))
			if len(args) == 1 {
				rule.Pattern = args[0]
			}
			if err := domain.NewValidator().ValidateRule(&rule); err != nil {
				return err
			}

			var index int
			err := opts.edit(cmd, func(set *workingset.WorkingSet) error {
				index = set.Add(rule)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added filter %d: %s\n", index, rule.Pattern)
			return nil
		},
	}

	cmd.Flags().StringVar(&foreground, "fg", domain.DefaultForeground, "Foreground color")
	cmd.Flags().StringVar(&background, "bg", domain.DefaultBackground, "Background color")
	cmd.Flags().BoolVarP(&ignoreCase, "ignore-case", "i", false, "Match the pattern case-insensitively")
	return cmd
}

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex("index", args[0])
			if err != nil {
				return err
			}

			var removed domain.Rule
			err = opts.edit(cmd, func(set *workingset.WorkingSet) error {
				removed, err = set.Remove(index)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed filter %d: %s\n", index, removed.Pattern)
			return nil
		},
	}
}

func newMoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Move a filter to another position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseIndex("from", args[0])
			if err != nil {
				return err
			}
			to, err := parseIndex("to", args[1])
			if err != nil {
				return err
			}

			if err := opts.edit(cmd, func(set *workingset.WorkingSet) error {
				return set.Move(from, to)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved filter %d to %d\n", from, to)
			return nil
		},
	}
}

func newImportCmd(opts *options) *cobra.Command {
	var adopt bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Add a filter file as a source",
		Long: `Add a filter file as a source. With --adopt every rule of the file that
is not imported yet is appended to the filter list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := domain.NewValidator().ValidatePath(path); err != nil {
				return err
			}

			var id, count, adopted int
			err := opts.edit(cmd, func(set *workingset.WorkingSet) error {
				var err error
				id, err = set.ImportSource(path)
				if err != nil {
					return err
				}
				refs, err := set.References(id)
				if err != nil {
					return err
				}
				count = len(refs)
				if !adopt {
					return nil
				}
				for _, ref := range refs {
					if ref.WorkingIndex >= 0 {
						continue
					}
					if _, err := set.Adopt(id, ref.Offset); err != nil {
						return err
					}
					adopted++
				}
				return nil
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s as source %d (%d rules)\n", path, id, count)
			if adopt {
				fmt.Fprintf(cmd.OutOrStdout(), "Adopted %d filters\n", adopted)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&adopt, "adopt", false, "Append the file's rules to the filter list")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var indices []int

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write filters to a filter file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := domain.NewValidator().ValidatePath(path); err != nil {
				return err
			}

			var count int
			if err := opts.view(cmd, func(set *workingset.WorkingSet) error {
				count = len(indices)
				if count == 0 {
					count = set.Len()
				}
				return set.Export(indices, path)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d filters to %s\n", count, path)
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&indices, "index", nil, "Filters to export (default all)")
	return cmd
}

func newColorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "colors",
		Short: "Show the color palette",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRenderer(cmd.OutOrStdout())
			for _, name := range domain.Palette {
				fmt.Fprintln(cmd.OutOrStdout(), swatch(r, name))
			}
			return nil
		},
	}
}

func newMatchCmd(opts *options) *cobra.Command {
	var onlyMatching bool

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Highlight standard input with the committed filters",
		Long: `Read lines from standard input and print each one in the colors of the
first filter that matches it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := opts.store(cmd).CommittedRules(cmd.Context())
			if err != nil {
				return err
			}
			list := matcher.NewRuleList(rules...)
			r := newRenderer(cmd.OutOrStdout())

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
			for scanner.Scan() {
				line := scanner.Text()
				style, _, ok := list.Match(line)
				switch {
				case ok:
					fmt.Fprintln(cmd.OutOrStdout(), styleFor(r, style).Render(line))
				case !onlyMatching:
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().BoolVarP(&onlyMatching, "only-matching", "o", false, "Print matching lines only")
	return cmd
}
