package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version info - set by ldflags during build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "schemecore",
	Short: "schemecore compiles a Scheme-like front end down to linear bytecode",
	Long:  "schemecore drives module resolution, macro expansion, semantic analysis, optimization, and bytecode codegen over a single source file.",
}

var debugFlag bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "build with rich, disassemblable instructions instead of the compacted release form")
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("schemecore %s\n", bold(Version))
		if Commit != "unknown" {
			fmt.Printf("commit: %s\n", Commit)
		}
		if BuildTime != "unknown" {
			fmt.Printf("built:  %s\n", BuildTime)
		}
	},
}

func printReportErr(err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", red("error"), err)
}
