package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/stefando/streamupload/internal/upload"
)

var (
	uploadFilename string
	uploadPublic   bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload URL",
	Short: "Stream one file into the configured bucket and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		svc, err := upload.NewFromConfig(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}

		result, err := svc.Upload(cmd.Context(), upload.Request{
			SourceURL: args[0],
			Filename:  uploadFilename,
			Public:    uploadPublic,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFilename, "filename", "", "object key to use instead of the name taken from the URL")
	uploadCmd.Flags().BoolVar(&uploadPublic, "public", false, "make the object publicly readable")
	rootCmd.AddCommand(uploadCmd)
}
