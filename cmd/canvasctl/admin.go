package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show batch, processor, quota and message statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet("/api/admin/stats")
		},
	}
	rootCmd.AddCommand(statsCmd)

	batchesCmd := &cobra.Command{Use: "batches", Short: "Batch operations"}
	batchesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet("/api/admin/batches")
		},
	})
	batchesCmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Partition pending messages into batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/api/admin/batches", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	})
	rootCmd.AddCommand(batchesCmd)

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Process the next pending batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/api/admin/batches/process-next", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	rootCmd.AddCommand(processCmd)

	var limit int
	messagesCmd := &cobra.Command{
		Use:   "messages",
		Short: "Show recent audience messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet("/api/admin/messages?limit=" + strconv.Itoa(limit))
		},
	}
	messagesCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of messages to show")
	rootCmd.AddCommand(messagesCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "mixed",
		Short: "Show mixed texts produced by the summarizer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet("/api/admin/mixed-text")
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "images",
		Short: "List generated images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet("/api/admin/images")
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "quota",
		Short: "Show Gemini API quota usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet("/api/admin/quota")
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear all messages, batches and statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/api/admin/reset", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	})
}

func printGet(path string) error {
	data, err := doGet(path)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stdout, string(data))
	return nil
}
