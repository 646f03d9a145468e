package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/purposesproject7/vista-sub001/internal/ingest"
	"github.com/purposesproject7/vista-sub001/internal/util"
)

type templateOptions struct {
	outDir string
	open   bool
	all    bool
}

func newTemplateCmd() *cobra.Command {
	var opts templateOptions

	cmd := &cobra.Command{
		Use:   "template [entity]",
		Short: "Write the upload template for an entity",
		Long:  "Write the .xlsx upload template for one entity (" + strings.Join(ingest.Entities(), ", ") + ") or all of them.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entities []string
			switch {
			case opts.all:
				entities = ingest.Entities()
			case len(args) == 1:
				entities = args
			default:
				return fmt.Errorf("entity required (one of %s) or --all", strings.Join(ingest.Entities(), ", "))
			}

			paths, err := writeTemplates(cmd.OutOrStdout(), opts.outDir, entities)
			if err != nil {
				return err
			}
			if opts.open {
				for _, p := range paths {
					if err := util.OpenPath(p); err != nil {
						printWarning(cmd.ErrOrStderr(), "cannot open %s: %v", p, err)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "output directory")
	cmd.Flags().BoolVar(&opts.open, "open", false, "open the written file(s)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "write templates for every entity")
	return cmd
}

func writeTemplates(w io.Writer, outDir string, entities []string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entities))
	for _, entity := range entities {
		schema, ok := ingest.Lookup(entity)
		if !ok {
			return paths, fmt.Errorf("unknown entity %q (one of %s)", entity, strings.Join(ingest.Entities(), ", "))
		}
		path := filepath.Join(outDir, ingest.TemplateFileName(schema))
		if err := writeTemplateFile(path, schema); err != nil {
			return paths, err
		}
		printSuccess(w, "%s", path)
		paths = append(paths, path)
	}
	return paths, nil
}

func writeTemplateFile(path string, schema ingest.Schema) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ingest.WriteTemplate(f, schema); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
