package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemecore/schemecore/internal/compiler"
	"github.com/schemecore/schemecore/internal/program"
	"github.com/schemecore/schemecore/internal/reader"
	"github.com/schemecore/schemecore/internal/sources"
)

var outFlag string

var compileCmd = &cobra.Command{
	Use:   "compile <file.scm>",
	Short: "compile a source file to a schemecore executable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exe, err := compileFile(args[0], debugFlag)
		if err != nil {
			printReportErr(err)
			os.Exit(1)
		}
		data, err := exe.ToJSON(false)
		if err != nil {
			return err
		}
		if outFlag == "" {
			fmt.Println(data)
			return nil
		}
		if err := os.WriteFile(outFlag, []byte(data), 0o644); err != nil {
			return err
		}
		fmt.Printf("%s wrote %s\n", green("compile"), outFlag)
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVarP(&outFlag, "out", "o", "", "write the executable to this path instead of stdout")
}

func compileFile(path string, debug bool) (*program.Executable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	srcs := sources.New()
	id := srcs.AddSource(string(data), path)

	file, err := reader.New(int(id)).ReadFile(string(data), path)
	if err != nil {
		return nil, err
	}

	c := compiler.New(reader.NewFileLoader(srcs))
	return c.CompileExecutable(file.Exprs, path, debug)
}
