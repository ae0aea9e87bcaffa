package snapshot

import (
	"fmt"
	"io"
	"strings"
)

// Register names of the low erasable addresses.
var registers = map[int]string{
	0o00: "A", 0o01: "L", 0o02: "Q", 0o03: "EBANK",
	0o04: "FBANK", 0o05: "Z", 0o06: "BBANK", 0o07: "ZERO",
	0o10: "ARUPT", 0o11: "LRUPT", 0o12: "QRUPT", 0o13: "SAMPT1",
	0o14: "SAMPT2", 0o15: "ZRUPT", 0o16: "BANKRUPT", 0o17: "BRUPT",
	0o20: "CYR", 0o21: "SR", 0o22: "CYL", 0o23: "EDOP",
	0o24: "TIME2", 0o25: "TIME1", 0o26: "TIME3", 0o27: "TIME4",
	0o30: "TIME5", 0o31: "TIME6", 0o32: "CDUX", 0o33: "CDUY",
	0o34: "CDUZ", 0o35: "CDUT", 0o36: "CDUS", 0o37: "PIPAX",
	0o40: "PIPAY", 0o41: "PIPAZ", 0o42: "BMAGX", 0o43: "BMAGY",
	0o44: "BMAGZ", 0o45: "INLINK", 0o46: "RNRAD", 0o47: "GYROCTR",
	0o50: "CDUXMCD", 0o51: "CDUYMCD", 0o52: "CDUZMCD", 0o53: "CDUTCMD",
	0o54: "CDUSCMD", 0o55: "THRUST", 0o56: "LEMONM", 0o57: "OUTLINK",
	0o60: "ALTM",
}

// RegisterName returns the name of a special register, or "".
func RegisterName(addr int) string {
	return registers[addr]
}

// Layout of the erasable dump.
const (
	banks       = 8
	rowsPerBank = 32
	wordsPerRow = 8
)

// Dump writes erasable memory as eight banks of 32 rows of 8 octal words.
func (s *Snapshot) Dump(w io.Writer) error {
	var b strings.Builder
	for bank := 0; bank < banks; bank++ {
		fmt.Fprintf(&b, "BANK %d\n", bank)
		b.WriteString("   ")
		for col := 0; col < wordsPerRow; col++ {
			fmt.Fprintf(&b, " %6d", col)
		}
		b.WriteByte('\n')
		for row := 0; row < rowsPerBank; row++ {
			fmt.Fprintf(&b, "%02o ", row)
			for col := 0; col < wordsPerRow; col++ {
				addr := bank*rowsPerBank*wordsPerRow + row*wordsPerRow + col
				fmt.Fprintf(&b, " %6s", s.Octal(addr))
			}
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
