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
	"strings"

	"github.com/blacktop/go-nucleus"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
)

// capCmd groups the capability-manager demonstrations: grant, revoke, and
// transfer all build a throwaway SystemState (no oracle binding needed,
// since capability bookkeeping never touches the execution oracle), apply
// the requested operation, and print the affected VMs' capability sets.
var capCmd = &cobra.Command{
	Use:   "cap",
	Short: "Exercise the nucleus capability manager (grant, revoke, transfer)",
}

func init() {
	rootCmd.AddCommand(capCmd)
	capCmd.AddCommand(capGrantCmd, capRevokeCmd, capTransferCmd)

	for _, c := range []*cobra.Command{capGrantCmd, capRevokeCmd, capTransferCmd} {
		c.Flags().String("cap", "execute", "capability: execute, mapmemory, handleexit, halt")
	}
	capTransferCmd.Flags().Bool("move", false, "revoke the capability from the source VM after granting it to the destination")
}

func parseCapability(flags *flag.FlagSet) (nucleus.Capability, error) {
	name, err := flags.GetString("cap")
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(name) {
	case "execute":
		return nucleus.CapExecute, nil
	case "mapmemory":
		return nucleus.CapMapMemory, nil
	case "handleexit":
		return nucleus.CapHandleExit, nil
	case "halt":
		return nucleus.CapHalt, nil
	default:
		return 0, fmt.Errorf("unknown capability %q (want execute, mapmemory, handleexit, or halt)", name)
	}
}

func printCapabilitySet(s *nucleus.SystemState, v nucleus.VMID) error {
	caps, err := s.GetAll(v)
	if err != nil {
		return err
	}
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.String()
	}
	fmt.Printf("%s: [%s]\n", v, strings.Join(names, ", "))
	return nil
}

var capGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant a capability to a freshly created VM and print its resulting set",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := parseCapability(cmd.Flags())
		if err != nil {
			return err
		}
		s := nucleus.NewSystemState()
		v := s.Create()
		if err := s.Revoke(v, c); err != nil {
			return err
		}
		if err := s.Grant(v, c); err != nil {
			return err
		}
		return printCapabilitySet(s, v)
	},
}

var capRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a capability from a freshly created VM and print its resulting set",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := parseCapability(cmd.Flags())
		if err != nil {
			return err
		}
		s := nucleus.NewSystemState()
		v := s.Create()
		if err := s.Revoke(v, c); err != nil {
			return err
		}
		return printCapabilitySet(s, v)
	},
}

var capTransferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Transfer a capability from one freshly created VM to another and print both sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := parseCapability(cmd.Flags())
		if err != nil {
			return err
		}
		move, err := cmd.Flags().GetBool("move")
		if err != nil {
			return err
		}

		s := nucleus.NewSystemState()
		src := s.Create()
		dst := s.Create()
		if err := s.Revoke(dst, c); err != nil {
			return err
		}
		if err := s.Transfer(src, dst, c, move); err != nil {
			return err
		}
		if err := printCapabilitySet(s, src); err != nil {
			return err
		}
		return printCapabilitySet(s, dst)
	},
}
