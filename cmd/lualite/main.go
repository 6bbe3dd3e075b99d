// Command lualite is the driver for the lualite scripting language: it
// reads source files, compiles them, and either executes the entry
// function or prints the compiled procedures.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lualite-lang/lualite/pkg/compiler"
	"github.com/lualite-lang/lualite/pkg/parser"
	"github.com/lualite-lang/lualite/pkg/vm"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lualite",
		Short: "lualite is a small scripting language on a bit-packed register VM",
	}

	var entry string
	var limit int
	var trace bool

	runCmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Compile the given source files and run the entry function",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			functions, err := compileFiles(args)
			if err != nil {
				return err
			}
			if trace {
				printListing(functions)
			}
			machine := vm.WithFunctions(compiler.FunctionMap(functions))
			result, err := runEntry(machine, entry, limit)
			if err != nil {
				return err
			}
			fmt.Printf("lualite result: %s\n", result)
			return nil
		},
	}
	runCmd.Flags().StringVar(&entry, "entry", "main", "Entry function name")
	runCmd.Flags().IntVar(&limit, "limit", 0, "Maximum instructions to execute (0 = unlimited)")
	runCmd.Flags().BoolVarP(&trace, "trace", "v", false, "Print compiled procedures before running")

	disasmCmd := &cobra.Command{
		Use:   "disasm [files...]",
		Short: "Compile the given source files and print every procedure",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			functions, err := compileFiles(args)
			if err != nil {
				return err
			}
			printListing(functions)
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, disasmCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// compileFiles concatenates the files' contents joined by newlines,
// parses, and compiles every function declaration.
func compileFiles(paths []string) ([]compiler.Compiled, error) {
	var source strings.Builder
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		source.Write(content)
		source.WriteByte('\n')
	}
	declarations, err := parser.ParseFile(source.String())
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	functions, err := compiler.CompileDeclarations(declarations)
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}
	return functions, nil
}

func runEntry(machine *vm.VirtualMachine, entry string, limit int) (vm.Value, error) {
	if limit <= 0 {
		result, err := machine.Run(entry)
		if err != nil {
			return vm.Nil(), fmt.Errorf("runtime error: %w", err)
		}
		return result, nil
	}
	procedure, ok := machine.GetFunction(entry)
	if !ok {
		return vm.Nil(), fmt.Errorf("runtime error: %w: %q", vm.ErrMissingFunction, entry)
	}
	if err := machine.InitializeWithValues(procedure); err != nil {
		return vm.Nil(), fmt.Errorf("runtime error: %w", err)
	}
	status, err := machine.ExecutionLoop(vm.Limited(limit))
	if err != nil {
		return vm.Nil(), fmt.Errorf("runtime error: %w", err)
	}
	if status == vm.Unfinished {
		return vm.Nil(), fmt.Errorf("instruction limit of %d reached", limit)
	}
	return machine.Result(), nil
}

func printListing(functions []compiler.Compiled) {
	heading := color.New(color.Bold, color.FgCyan)
	for _, fn := range functions {
		heading.Printf("%s:\n", fn.Name)
		fmt.Println(fn.Procedure)
	}
}
