// Package utils holds small presentation helpers shared by the hv
// subcommands.
package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const bytesPerLine = 16

var addrColor = color.New(color.FgCyan)

func init() {
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// HexDump renders data as one or more 16-byte rows, each prefixed with its
// guest address and followed by an ASCII gutter, in the classic
// address/hex/ASCII layout.
func HexDump(data []byte, baseAddr uint64) string {
	var b strings.Builder
	for i := 0; i < len(data); i += bytesPerLine {
		end := min(i+bytesPerLine, len(data))
		line := data[i:end]

		b.WriteString(addrColor.Sprintf("%016x: ", baseAddr+uint64(i)))
		for j := 0; j < bytesPerLine; j++ {
			if j < len(line) {
				fmt.Fprintf(&b, "%02x ", line[j])
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteString(" ")
		for _, c := range line {
			if c >= 32 && c <= 126 {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
