package util

import (
	c "tinyfs/internal"

	"fmt"
	"io"
	"strings"
)

func PrintBytes(w io.Writer, raw []byte) {
	PrintBytesCfg(w, raw, 2, 16)
}

// Hex dump with an offset column, group bytes per cluster and cols clusters per line.
func PrintBytesCfg(w io.Writer, raw []byte, group int, cols int) {
	if group <= 0 { group = 1 }
	if cols <= 0 { cols = 16 }
	width := group * cols

	fmt.Fprint(w, "        ")
	for i := range width {
		fmt.Fprintf(w, "%02x", i)
		if (i+1)%group == 0 {
			fmt.Fprint(w, " ")
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	for i := range raw {
		if i%width == 0 {
			fmt.Fprintf(w, "+%04x | ", i)
		}
		fmt.Fprintf(w, "%02x", raw[i])
		if (i+1)%group == 0 {
			fmt.Fprint(w, " ")
		}
		if (i+1)%width == 0 {
			fmt.Fprintln(w)
		}
	}
	if len(raw)%width != 0 {
		fmt.Fprintln(w)
	}
}

// Boxed table of a stat buffer, one u64 (native order) per row with its field name.
func PrettyPrintRecord(data []byte, names []string) string {
	var s strings.Builder
	s.WriteString("┏━━━━━━━━┳━━━━━━━━━━━━━┳━━━━━━━━━━━━━━━━━━━━┓\n")
	s.WriteString("┃ Offset ┃ Field       ┃ u64 (native)       ┃\n")
	s.WriteString("┣━━━━━━━━╋━━━━━━━━━━━━━╋━━━━━━━━━━━━━━━━━━━━┫\n")

	for i := 0; i+c.LEN_U64 <= len(data); i += c.LEN_U64 {
		name := ""
		if i/c.LEN_U64 < len(names) {
			name = names[i/c.LEN_U64]
		}
		fmt.Fprintf(&s, "┃ 0x%04x ┃ %-11s ┃ 0x%016x ┃\n", i, name, c.Bin.Uint64(data[i:]))
	}
	s.WriteString("┗━━━━━━━━┻━━━━━━━━━━━━━┻━━━━━━━━━━━━━━━━━━━━┛\n")

	return s.String()
}
