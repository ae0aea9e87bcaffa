package agc

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/wippyai/agc-bridge/channel"
)

// Key is a DSKY keycode as written to the keypad channel.
type Key uint32

// DSKY keycodes. KeyNone is a release and is never sent.
const (
	KeyNone   Key = 0
	Key0      Key = 0o20
	Key1      Key = 0o1
	Key2      Key = 0o2
	Key3      Key = 0o3
	Key4      Key = 0o4
	Key5      Key = 0o5
	Key6      Key = 0o6
	Key7      Key = 0o7
	Key8      Key = 0o10
	Key9      Key = 0o11
	KeyVerb   Key = 0o21
	KeyRset   Key = 0o22
	KeyKeyRel Key = 0o31
	KeyPlus   Key = 0o32
	KeyMinus  Key = 0o33
	KeyEntr   Key = 0o34
	KeyClr    Key = 0o36
	KeyNoun   Key = 0o37

	// KeyPro is the PRO key. It is not a keycode; it drives the proceed
	// discrete on channel 0o32.
	KeyPro Key = 1 << 16
)

// Fixed keypad and proceed wiring.
const (
	KeypadChannel  = channel.ChanKeypad
	ProceedChannel = channel.ChanProceed
	ProceedBit     = 1 << 13
)

var keyNames = map[Key]string{
	Key0: "0", Key1: "1", Key2: "2", Key3: "3", Key4: "4",
	Key5: "5", Key6: "6", Key7: "7", Key8: "8", Key9: "9",
	KeyVerb: "VERB", KeyNoun: "NOUN", KeyPlus: "+", KeyMinus: "-",
	KeyClr: "CLR", KeyEntr: "ENTR", KeyRset: "RSET", KeyKeyRel: "KEY REL",
	KeyPro: "PRO",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Key(%#o)", uint32(k))
}

// ParseKey maps a keyboard character to a DSKY key:
// v n + - c k e r p and the digits, case-insensitive.
func ParseKey(r rune) (Key, bool) {
	switch unicode.ToLower(r) {
	case 'v':
		return KeyVerb, true
	case 'n':
		return KeyNoun, true
	case '+':
		return KeyPlus, true
	case '-':
		return KeyMinus, true
	case 'c':
		return KeyClr, true
	case 'k':
		return KeyKeyRel, true
	case 'e':
		return KeyEntr, true
	case 'r':
		return KeyRset, true
	case 'p':
		return KeyPro, true
	case '0':
		return Key0, true
	}
	if r >= '1' && r <= '9' {
		return Key(r - '0'), true
	}
	return KeyNone, false
}

// KeyByName returns the key with the given display name ("VERB", "KEY REL",
// "7", "PRO"), case-insensitive. Single keyboard characters are accepted
// too.
func KeyByName(name string) (Key, bool) {
	for k, n := range keyNames {
		if strings.EqualFold(n, name) {
			return k, true
		}
	}
	if r := []rune(name); len(r) == 1 {
		return ParseKey(r[0])
	}
	return KeyNone, false
}
