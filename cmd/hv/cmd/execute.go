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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/blacktop/go-nucleus"
	"github.com/blacktop/go-nucleus/oracle"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// wireCPUState is the execute/emulate JSON wire format: friendlier named
// fields than nucleus.CPUState's GPR array, for a human-editable state file.
type wireCPUState struct {
	X0  uint64 `json:"x0"`
	X1  uint64 `json:"x1"`
	X2  uint64 `json:"x2"`
	X3  uint64 `json:"x3"`
	X4  uint64 `json:"x4"`
	X5  uint64 `json:"x5"`
	X6  uint64 `json:"x6"`
	X7  uint64 `json:"x7"`
	X8  uint64 `json:"x8"`
	X9  uint64 `json:"x9"`
	X10 uint64 `json:"x10"`
	X11 uint64 `json:"x11"`
	X12 uint64 `json:"x12"`
	X13 uint64 `json:"x13"`
	X14 uint64 `json:"x14"`
	X15 uint64 `json:"x15"`
	X16 uint64 `json:"x16"`
	X17 uint64 `json:"x17"`
	X18 uint64 `json:"x18"`
	X19 uint64 `json:"x19"`
	X20 uint64 `json:"x20"`
	X21 uint64 `json:"x21"`
	X22 uint64 `json:"x22"`
	X23 uint64 `json:"x23"`
	X24 uint64 `json:"x24"`
	X25 uint64 `json:"x25"`
	X26 uint64 `json:"x26"`
	X27 uint64 `json:"x27"`
	X28 uint64 `json:"x28"`
	FP  uint64 `json:"fp"`
	LR  uint64 `json:"lr"`
	SP  uint64 `json:"sp"`
	PC  uint64 `json:"pc"`
	CPSR uint64 `json:"cpsr"`
}

func (w wireCPUState) toCPUState() nucleus.CPUState {
	cpu := nucleus.CPUState{SP: w.SP, PC: w.PC, Flags: w.CPSR}
	gpr := []uint64{
		w.X0, w.X1, w.X2, w.X3, w.X4, w.X5, w.X6, w.X7, w.X8, w.X9,
		w.X10, w.X11, w.X12, w.X13, w.X14, w.X15, w.X16, w.X17, w.X18, w.X19,
		w.X20, w.X21, w.X22, w.X23, w.X24, w.X25, w.X26, w.X27, w.X28,
	}
	copy(cpu.GPR[:29], gpr)
	cpu.GPR[29] = w.FP
	cpu.GPR[30] = w.LR
	return cpu
}

func fromCPUState(cpu nucleus.CPUState) wireCPUState {
	return wireCPUState{
		X0: cpu.GPR[0], X1: cpu.GPR[1], X2: cpu.GPR[2], X3: cpu.GPR[3],
		X4: cpu.GPR[4], X5: cpu.GPR[5], X6: cpu.GPR[6], X7: cpu.GPR[7],
		X8: cpu.GPR[8], X9: cpu.GPR[9], X10: cpu.GPR[10], X11: cpu.GPR[11],
		X12: cpu.GPR[12], X13: cpu.GPR[13], X14: cpu.GPR[14], X15: cpu.GPR[15],
		X16: cpu.GPR[16], X17: cpu.GPR[17], X18: cpu.GPR[18], X19: cpu.GPR[19],
		X20: cpu.GPR[20], X21: cpu.GPR[21], X22: cpu.GPR[22], X23: cpu.GPR[23],
		X24: cpu.GPR[24], X25: cpu.GPR[25], X26: cpu.GPR[26], X27: cpu.GPR[27],
		X28: cpu.GPR[28], FP: cpu.GPR[29], LR: cpu.GPR[30],
		SP: cpu.SP, PC: cpu.PC, CPSR: cpu.Flags,
	}
}

// ExecuteResult is the execute/emulate JSON result: the CPU state after the
// first exit, the action the nucleus's dispatcher took, and the executed
// memory for inspection.
type ExecuteResult struct {
	State  wireCPUState      `json:"state"`
	Action string            `json:"action"`
	Memory map[string][]byte `json:"memory,omitempty"`
	Error  string            `json:"error,omitempty"`
}

var (
	stateFile string
	memSize   int
	baseAddr  uint64
)

func init() {
	rootCmd.AddCommand(executeCmd)
	executeCmd.Flags().StringVarP(&stateFile, "state", "s", "", "JSON file with initial CPU state")
	executeCmd.Flags().IntVar(&memSize, "mem-size", 16384, "Memory size to allocate (bytes)")
	executeCmd.Flags().Uint64VarP(&baseAddr, "base-addr", "a", 0x4000, "Base address for code execution")
}

var executeCmd = &cobra.Command{
	Use:   "execute [code-file]",
	Short: "Run ARM64 code through the nucleus and print the resulting CPU state as JSON",
	Long: `Run ARM64 machine code through a nucleus-managed VM up to its first
exit, and print the resulting CPU state as JSON.

Code can be provided as:
  - A binary file argument
  - Stdin (if no file argument provided)

Initial CPU state can be provided via --state flag pointing to a JSON file.
Results are output as JSON to stdout.`,
	RunE: runExecute,
}

func runExecute(cmd *cobra.Command, args []string) error {
	ok, err := oracle.Supported()
	if err != nil || !ok {
		return fmt.Errorf("hypervisor not supported: %v", err)
	}

	var initialState wireCPUState
	if stateFile != "" {
		stateData, err := os.ReadFile(stateFile)
		if err != nil {
			return fmt.Errorf("failed to read state file: %w", err)
		}
		if err := json.Unmarshal(stateData, &initialState); err != nil {
			return fmt.Errorf("failed to parse state JSON: %w", err)
		}
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

	result, err := executeCode(codeData, initialState)
	if err != nil {
		result = &ExecuteResult{Error: err.Error()}
	}

	output, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

func executeCode(code []byte, initialState wireCPUState) (*ExecuteResult, error) {
	page := unix.Getpagesize()
	if memSize%page != 0 {
		return nil, fmt.Errorf("mem-size must be a multiple of page size (%d bytes)", page)
	}

	hostMem, err := unix.Mmap(-1, 0, memSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate memory: %w", err)
	}
	defer unix.Munmap(hostMem)

	if len(code) > len(hostMem) {
		return nil, fmt.Errorf("code size (%d) exceeds memory size (%d)", len(code), len(hostMem))
	}
	copy(hostMem, code)

	engine := nucleus.NewEngine(oracle.NewHVFOracle())

	v, err := engine.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create VM: %w", err)
	}
	defer engine.Destroy(v)

	perms := nucleus.ProtRead | nucleus.ProtWrite | nucleus.ProtExec
	if err := engine.Map(v, nucleus.GPA(baseAddr), hostMem, perms); err != nil {
		return nil, fmt.Errorf("failed to map memory: %w", err)
	}

	cpu := initialState.toCPUState()
	if cpu.PC == 0 {
		cpu.PC = baseAddr
	}
	if err := engine.Initialize(v, cpu); err != nil {
		return nil, fmt.Errorf("failed to initialize VM: %w", err)
	}

	action, err := engine.RunOnce(v)
	if err != nil {
		return nil, fmt.Errorf("failed to execute: %w", err)
	}

	finalState, err := engine.GetState(v)
	if err != nil {
		return nil, fmt.Errorf("failed to get final state: %w", err)
	}

	memCopy := make([]byte, len(code))
	copy(memCopy, hostMem[:len(code)])

	return &ExecuteResult{
		State:  fromCPUState(finalState.CPU),
		Action: action.Kind.String(),
		Memory: map[string][]byte{fmt.Sprintf("0x%x", baseAddr): memCopy},
	}, nil
}
