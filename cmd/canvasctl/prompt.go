package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	promptCmd := &cobra.Command{Use: "prompt", Short: "Style prompt operations"}

	promptCmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the current style prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet("/api/admin/prompt")
		},
	})

	promptCmd.AddCommand(&cobra.Command{
		Use:   "set STYLE...",
		Short: "Replace the style prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			style := strings.TrimSpace(strings.Join(args, " "))
			if style == "" {
				return fmt.Errorf("style cannot be empty")
			}
			data, err := doPutJSON("/api/admin/prompt", map[string]interface{}{"prompt": style})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	})

	rootCmd.AddCommand(promptCmd)
}
