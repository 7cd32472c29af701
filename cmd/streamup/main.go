// Command streamup streams remote files into object storage, either as an
// HTTP service or as a one-shot upload.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stefando/streamupload/internal/config"
	"github.com/stefando/streamupload/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "streamup",
	Short:         "Stream remote files into S3, GCS or MinIO buckets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// setup loads the configuration and builds the logger it asks for.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogPretty), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
