// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"lcc/internal/compiler"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: lcc <file>")
		os.Exit(1)
	}

	path := os.Args[1]
	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(1)
	}

	result := compiler.Compile(path, string(source))

	if result.Reporter.HasErrors() {
		for _, d := range result.Reporter.Diagnostics() {
			fmt.Print(result.Reporter.FormatHuman(d))
		}
		color.Red("❌ %s failed to compile", path)
		os.Exit(1)
	}

	fmt.Print(result.Asm)
	color.Green("✅ Successfully compiled %s", path)
}
