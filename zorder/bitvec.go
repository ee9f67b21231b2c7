package zorder

import "fmt"

// GetBit reports bit i of b, counting from the most significant bit of b[0].
func GetBit(b []byte, i int) bool {
	checkBit(b, i)
	return b[i>>3]&(0x80>>(i&7)) != 0
}

// SetBit sets bit i of b in place, using the addressing of GetBit.
func SetBit(b []byte, i int, v bool) {
	checkBit(b, i)
	if v {
		b[i>>3] |= 0x80 >> (i & 7)
	} else {
		b[i>>3] &^= 0x80 >> (i & 7)
	}
}

func checkBit(b []byte, i int) {
	if i < 0 || i >= len(b)*8 {
		panic(fmt.Sprintf("zorder: bit index %d out of range [0,%d)", i, len(b)*8))
	}
}
