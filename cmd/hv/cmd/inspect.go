/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/blacktop/go-nucleus/oracle"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [code-file]",
	Short: "Run code like execute, but print a colorized human-readable report instead of JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := oracle.Supported()
		if err != nil || !ok {
			return fmt.Errorf("hypervisor not supported: %v", err)
		}

		var codeData []byte
		if len(args) > 0 {
			codeData, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read code file: %w", err)
			}
		} else {
			codeData, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read from stdin: %w", err)
			}
		}
		if len(codeData) == 0 {
			return fmt.Errorf("no code provided")
		}

		result, err := executeCode(codeData, wireCPUState{})
		if err != nil {
			return err
		}

		actionColor := color.New(color.FgGreen)
		switch result.Action {
		case "Halt":
			actionColor = color.New(color.FgRed)
		case "InjectException":
			actionColor = color.New(color.FgYellow)
		}

		fmt.Printf("exit action: ")
		actionColor.Println(result.Action)
		fmt.Printf("PC=0x%x  SP=0x%x  X0=0x%x  X1=0x%x\n",
			result.State.PC, result.State.SP, result.State.X0, result.State.X1)
		return nil
	},
}
