package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/xlsxparser"
)

// inspectRows limits the data rows printed per sheet. Zero prints all.
var inspectRows int

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.xlsx>",
	Short: "Print the content of an exported workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return inspectWorkbook(cmd.OutOrStdout(), f, inspectRows)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().IntVarP(&inspectRows, "rows", "n", 10, "Data rows to print per sheet (0 prints all)")
}

// inspectWorkbook prints every sheet as tab-separated rows, header first.
func inspectWorkbook(w io.Writer, r io.Reader, limit int) error {
	sheets, err := xlsxparser.ReadWorkbook(r)
	if err != nil {
		return err
	}

	for _, sheet := range sheets {
		data := max(len(sheet.Rows)-1, 0)
		fmt.Fprintf(w, "=== %s (%d row(s)) ===\n", sheet.Name, data)
		for i, row := range sheet.Rows {
			if limit > 0 && i > limit {
				fmt.Fprintf(w, "... %d more\n", data-limit)
				break
			}
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
	}
	return nil
}
