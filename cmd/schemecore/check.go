package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemecore/schemecore/internal/compiler"
	"github.com/schemecore/schemecore/internal/reader"
	"github.com/schemecore/schemecore/internal/sources"
)

var checkCmd = &cobra.Command{
	Use:   "check <file.scm>",
	Short: "resolve modules and run semantic analysis without generating bytecode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}

		srcs := sources.New()
		id := srcs.AddSource(string(data), path)
		file, err := reader.New(int(id)).ReadFile(string(data), path)
		if err != nil {
			printReportErr(err)
			os.Exit(1)
		}

		c := compiler.New(reader.NewFileLoader(srcs))
		if err := c.Check(file.Exprs, path); err != nil {
			printReportErr(err)
			os.Exit(1)
		}
		fmt.Printf("%s %s\n", green("ok"), path)
		return nil
	},
}
