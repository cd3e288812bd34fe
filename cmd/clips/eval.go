package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEvalCommand(opts *rootOptions) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "eval <expression>...",
		Short: "Evaluate expressions and print their values",
		Long: `Evaluate each expression in a fresh environment and print its value.
Constructs from --load files and the configuration are loaded first.

Example:
  clips eval "(+ 1 2)" "(create$ a b c)"
  clips eval --load rules.clp "(deftemplate-slot-names point)"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			s, err := openSession(cmd.Context(), opts, streams{out: out, errOut: cmd.ErrOrStderr(), in: cmd.InOrStdin()})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.loadConfigured(); err != nil {
				return err
			}
			if err := s.loadFiles(files); err != nil {
				return err
			}
			for _, expr := range args {
				v, err := s.env.Eval(expr)
				if err != nil {
					return err
				}
				if text := formatValue(s.env, v); text != "" {
					fmt.Fprintln(out, text)
				}
				releaseValue(v)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&files, "load", "l", nil, "construct files to load first")
	return cmd
}
