package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lgulliver/stockpile/pkg/client"
	"github.com/lgulliver/stockpile/pkg/utils"
)

func newPushCmd(opts *globalOptions) *cobra.Command {
	var (
		upload    client.UploadOptions
		chunkSize int64
	)

	cmd := &cobra.Command{
		Use:   "push <file>",
		Short: "Upload a file in chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			upload.ChunkSize = chunkSize
			upload.Progress = func(done, total int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rchunks %d/%d", done, total)
				if done == total {
					fmt.Fprintln(cmd.ErrOrStderr())
				}
			}

			result, err := opts.client().Upload(ctx, args[0], upload)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "filename: %s\n", result.Filename)
			fmt.Fprintf(out, "size:     %s\n", utils.FormatBytes(result.Size))
			fmt.Fprintf(out, "sha256:   %s\n", result.SHA256)
			if result.URL != "" {
				fmt.Fprintf(out, "url:      %s\n", result.URL)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&upload.Filename, "name", "", "filename to send instead of the file's base name")
	flags.StringVar(&upload.ContentType, "type", "", "MIME type (guessed from the extension by default)")
	flags.Int64Var(&chunkSize, "chunk-size", client.DefaultChunkSize, "chunk size in bytes")
	flags.IntVarP(&upload.Parallelism, "parallel", "p", client.DefaultParallelism, "chunks uploaded at once")
	return cmd
}
