package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/purposesproject7/vista-sub001/internal/config"
)

const version = "0.3.0"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "vista",
		Short:         "Academic project portal: filter sessions, spreadsheet uploads",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `Vista hosts the academic-context filter sessions and the spreadsheet
ingestion pipeline used by the project portal. It can run as an HTTP service
or be used offline to prepare, check and upload spreadsheets.`,
		Example: `  # Run the HTTP service
  $ vista serve --port 20261

  # Write the faculty upload template and open it
  $ vista template faculty --open

  # Check a spreadsheet without uploading
  $ vista check students ./students.xlsx

  # Upload the valid rows of a spreadsheet
  $ vista upload faculty ./faculty.xlsx --school SCOPE --programme BCE --year 2024-25`,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetVersionTemplate(fmt.Sprintf("vista version %s\n", version))
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: config.toml next to the executable)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newTemplateCmd())
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newUploadCmd(opts))
	return cmd
}

// loadConfig 配置文件不存在时使用默认值
func (o *rootOptions) loadConfig() (*config.AppConfig, config.LoadConfigInfo, error) {
	cfg, info, err := config.LoadConfigWithInfo(o.configPath)
	if err != nil {
		return nil, info, fmt.Errorf("load config: %w", err)
	}
	return cfg, info, nil
}
