package aten

import "sort"

// X11 keysyms the bridge knows how to translate. Keysyms below 0x100
// mirror Latin-1/ASCII code points directly (the X11 keysymdef.h
// convention); the function-key and modifier keysyms above 0xff00 are
// named after their X11 constants.
const (
	keysymBackSpace = 0xff08
	keysymTab       = 0xff09
	keysymReturn    = 0xff0d
	keysymEscape    = 0xff1b
	keysymHome      = 0xff50
	keysymLeft      = 0xff51
	keysymUp        = 0xff52
	keysymRight     = 0xff53
	keysymDown      = 0xff54
	keysymPrior     = 0xff55
	keysymNext      = 0xff56
	keysymEnd       = 0xff57

	keysymF1  = 0xffbe
	keysymF12 = keysymF1 + 11
	keysymF13 = 0xffca
	keysymF24 = keysymF13 + 11

	keysymShiftL   = 0xffe1
	keysymShiftR   = 0xffe2
	keysymControlL = 0xffe3
	keysymControlR = 0xffe4
	keysymAltL     = 0xffe9
	keysymAltR     = 0xffea
)

type keyEntry struct {
	keysym uint32
	usage  byte
}

// keymap is the static keysym-to-USB-HID-usage table. It is built once
// (below) from the alphabet, digits, punctuation, and named keys, then
// sorted by keysym so Lookup can binary search it.
var keymap []keyEntry

func init() {
	keymap = buildKeymap()
	sort.Slice(keymap, func(i, j int) bool {
		return keymap[i].keysym < keymap[j].keysym
	})
}

func buildKeymap() []keyEntry {
	entries := make([]keyEntry, 0, 128)

	add := func(keysym uint32, usage byte) {
		entries = append(entries, keyEntry{keysym: keysym, usage: usage})
	}

	// a-z
	for i := 0; i < 26; i++ {
		add(uint32('a'+i), byte(0x04+i))
	}
	// A-Z map to the same usage codes: upstream receives one combined key.
	for i := 0; i < 26; i++ {
		add(uint32('A'+i), byte(0x04+i))
	}

	// digits 1-9 then 0, matching the standard USB HID keyboard page order.
	digitUsage := []byte{0x1e, 0x1f, 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27}
	for i, u := range digitUsage {
		digit := byte('1' + i)
		if i == 9 {
			digit = '0'
		}
		add(uint32(digit), u)
	}

	add(keysymReturn, 0x28)
	add(keysymEscape, 0x29)
	add(keysymBackSpace, 0x2a)
	add(keysymTab, 0x2b)
	add(uint32(' '), 0x2c)
	add(uint32('-'), 0x2d)
	add(uint32('='), 0x2e)
	add(uint32('['), 0x2f)
	add(uint32(']'), 0x30)
	add(uint32('\\'), 0x31)
	add(uint32(';'), 0x33)
	add(uint32('\''), 0x34)
	add(uint32('`'), 0x35)
	add(uint32(','), 0x36)
	add(uint32('.'), 0x37)
	add(uint32('/'), 0x38)

	// Shifted punctuation forms, mapped to their unshifted equivalents: the
	// ATEN dialect only receives the combined key, so any layout that could
	// have produced it is an acceptable source; the US layout is as good a
	// pick as any.
	add(uint32('<'), 0x36) // ,
	add(uint32('>'), 0x37) // .
	add(uint32('!'), 0x1e) // 1
	add(uint32('@'), 0x1f) // 2
	add(uint32('#'), 0x20) // 3
	add(uint32('$'), 0x21) // 4
	add(uint32('%'), 0x22) // 5
	add(uint32('^'), 0x23) // 6
	add(uint32('&'), 0x24) // 7
	add(uint32('*'), 0x25) // 8
	add(uint32('('), 0x26) // 9
	add(uint32(')'), 0x27) // 0
	add(uint32('_'), 0x2d) // -
	add(uint32('|'), 0x31) // backslash
	add(uint32('"'), 0x34) // '
	add(uint32('~'), 0x35) // `
	add(uint32('?'), 0x38) // /
	add(uint32(':'), 0x33) // ;

	for i := 0; i < 12; i++ {
		add(uint32(keysymF1+i), byte(0x3a+i))
	}
	for i := 0; i < 12; i++ {
		add(uint32(keysymF13+i), byte(0x68+i))
	}

	add(keysymHome, 0x4a)
	add(keysymLeft, 0x50)
	add(keysymUp, 0x52)
	add(keysymRight, 0x4f)
	add(keysymDown, 0x51)
	add(keysymPrior, 0x4b)
	add(keysymNext, 0x4e)
	add(keysymEnd, 0x4d)

	add(keysymShiftL, 0xe1)
	add(keysymShiftR, 0xe5)
	add(keysymControlL, 0xe0)
	add(keysymControlR, 0xe4)
	add(keysymAltL, 0xe2)
	add(keysymAltR, 0xe6)

	return entries
}

// LookupUsage returns the USB HID usage code for an X11 keysym, or 0 if
// the keysym has no mapping (the sentinel meaning "drop the event").
// Pure function after package init: safe to call concurrently.
func LookupUsage(keysym uint32) byte {
	i := sort.Search(len(keymap), func(i int) bool {
		return keymap[i].keysym >= keysym
	})
	if i < len(keymap) && keymap[i].keysym == keysym {
		return keymap[i].usage
	}
	return 0
}
