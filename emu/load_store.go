package emu

import "github.com/sarchlab/sbcore/insts"

// ExtendLoad shapes raw loaded data of the given width into a register
// value, sign- or zero-extending it.
func ExtendLoad(raw uint32, width insts.Width, signed bool) uint32 {
	switch width {
	case insts.WidthByte:
		if signed {
			return uint32(int32(int8(raw)))
		}
		return raw & 0xFF
	case insts.WidthHalf:
		if signed {
			return uint32(int32(int16(raw)))
		}
		return raw & 0xFFFF
	default:
		return raw
	}
}

// TruncateStore keeps the bytes of v that a store of the given width writes.
func TruncateStore(v uint32, width insts.Width) uint32 {
	switch width {
	case insts.WidthByte:
		return v & 0xFF
	case insts.WidthHalf:
		return v & 0xFFFF
	default:
		return v
	}
}

// WidthBytes returns the access size in bytes, treating zero as a word.
func WidthBytes(width insts.Width) int {
	if width == 0 {
		return 4
	}
	return int(width)
}
