// =============================================================================
// NFe to XLSX Converter - Templates Command
// =============================================================================
//
// COMMAND USAGE:
//   nfexlsx templates             list the column catalog and named templates
//   nfexlsx templates show <id>   print the resolved columns of one template
//   nfexlsx templates validate    resolve every named template, report problems
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/template"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the available columns and named templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, registry, closer, err := loadTemplates()
		if err != nil {
			return err
		}
		defer closer.Close()
		return listTemplates(cmd.OutOrStdout(), resolver.Catalog(), registry)
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the resolved columns of a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, registry, closer, err := loadTemplates()
		if err != nil {
			return err
		}
		defer closer.Close()
		return showTemplate(cmd.OutOrStdout(), resolver, registry, args[0])
	},
}

var templatesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Resolve every named template and report problems",
	Long: `Resolve every template of the templates directory against the column
catalog with the configured unknown column policy. Dropped columns are
reported; the command fails when any template is rejected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, registry, closer, err := loadTemplates()
		if err != nil {
			return err
		}
		defer closer.Close()
		return validateTemplates(cmd.OutOrStdout(), resolver, registry)
	},
}

func init() {
	templatesCmd.AddCommand(templatesShowCmd)
	templatesCmd.AddCommand(templatesValidateCmd)
	rootCmd.AddCommand(templatesCmd)
}

func loadTemplates() (*template.Resolver, *template.Registry, io.Closer, error) {
	cfg, logger, closer, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	resolver, registry, err := newResolver(cfg, logger)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	return resolver, registry, closer, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func listTemplates(w io.Writer, catalog *template.Catalog, registry *template.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "COLUMN\tLABEL\tFORMAT\tDEFAULT\tREQUIRED")
	def := catalog.Default()
	inDefault := make(map[string]bool, len(def.Columns))
	for _, c := range def.Columns {
		inDefault[c.ID] = true
	}
	for _, c := range catalog.Columns() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Label, c.Format, yesNo(inDefault[c.ID]), yesNo(c.Required))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTemplates:\n  %s\t%s (%d columns)\n", template.DefaultTemplateID, def.Name, len(def.Columns))
	for _, req := range registry.List() {
		fmt.Fprintf(w, "  %s\t%s (%d columns)\n", req.ID, req.Name, len(req.Columns))
	}
	return nil
}

func showTemplate(w io.Writer, resolver *template.Resolver, registry *template.Registry, id string) error {
	var tpl *types.Template
	if id == template.DefaultTemplateID {
		tpl = resolver.Catalog().Default()
	} else {
		req, ok := registry.Get(id)
		if !ok {
			return fmt.Errorf("unknown template: %s", id)
		}
		var err error
		if tpl, err = resolver.Resolve(req); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "%s (%s)\n\n", tpl.Name, id)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOLUMN\tLABEL\tFORMAT\tWIDTH")
	for i, c := range tpl.Columns {
		width := "auto"
		if c.Width > 0 {
			width = fmt.Sprintf("%g", c.Width)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, c.ID, c.Label, c.Format, width)
	}
	return tw.Flush()
}

func validateTemplates(w io.Writer, resolver *template.Resolver, registry *template.Registry) error {
	var errs []error
	for _, req := range registry.List() {
		tpl, dropped, err := template.Resolve(resolver.Catalog(), req, resolver.Policy())
		if err != nil {
			fmt.Fprintf(w, "  ✗ %s: %v\n", req.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", req.ID, err))
			continue
		}
		fmt.Fprintf(w, "  ✓ %s: %d column(s)\n", req.ID, len(tpl.Columns))
		for _, d := range dropped {
			if d.Suggestion != "" {
				fmt.Fprintf(w, "      dropped %q (did you mean %q?)\n", d.ID, d.Suggestion)
			} else {
				fmt.Fprintf(w, "      dropped %q\n", d.ID)
			}
		}
	}
	fmt.Fprintf(w, "%d template(s) checked, %d invalid\n", registry.Len(), len(errs))
	return errors.Join(errs...)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
