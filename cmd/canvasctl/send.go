package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	var userID int64
	var username, displayName string

	sendCmd := &cobra.Command{
		Use:   "send TEXT...",
		Short: "Submit a test message to the collector",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.TrimSpace(strings.Join(args, " "))
			if content == "" {
				return fmt.Errorf("message text cannot be empty")
			}
			payload := map[string]interface{}{
				"userId":  userID,
				"content": content,
				"source":  "cli",
			}
			if username != "" {
				payload["username"] = username
			}
			if displayName != "" {
				payload["displayName"] = displayName
			}
			data, err := doPostJSON("/api/messages", payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	sendCmd.Flags().Int64VarP(&userID, "user", "u", 1, "Sender user ID")
	sendCmd.Flags().StringVarP(&username, "username", "l", "", "Sender username")
	sendCmd.Flags().StringVarP(&displayName, "name", "n", "", "Sender display name")
	rootCmd.AddCommand(sendCmd)
}
