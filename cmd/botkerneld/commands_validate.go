package main

import "github.com/spf13/cobra"

// buildValidateCmd creates the "validate" command: parses and compiles a
// spec file offline through the same dsl.Compile path the server uses, for
// use in CI before a spec is ever published.
func buildValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec-file>",
		Short: "Parse and compile a spec file without publishing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0])
		},
	}
	return cmd
}
