package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <file.scm>",
	Short: "compile a source file and print its disassembly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exe, err := compileFile(args[0], true)
		if err != nil {
			printReportErr(err)
			os.Exit(1)
		}
		fmt.Print(exe.Disassemble())
		return nil
	},
}
