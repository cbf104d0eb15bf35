package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <upload-id>",
		Short: "Show an upload session's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			status, err := opts.client().Status(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "upload:   %s\n", status.UploadID)
			fmt.Fprintf(out, "state:    %s\n", status.Status)
			fmt.Fprintf(out, "received: %d chunks\n", status.ChunksReceived)
			if status.Path != "" {
				fmt.Fprintf(out, "path:     %s\n", status.Path)
			}
			return nil
		},
	}
}

func newAbortCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <upload-id>",
		Short: "Discard an upload session and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			if err := opts.client().Abort(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "aborted %s\n", args[0])
			return nil
		},
	}
}
