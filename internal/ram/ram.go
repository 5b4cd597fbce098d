// Package ram implements the guest's flat 16 MiB address space.
//
// All multi-byte values are stored big-endian, matching the M68000 guest
// bus. Accessors convert to/from host byte order; callers never see raw
// guest bytes for multi-byte fields.
package ram

import (
	"encoding/binary"
	"fmt"
)

// Size is the guest address space: sixteen mebibytes.
const Size = 0x0100_0000

// RAM owns the guest's entire byte-addressable memory.
type RAM struct {
	bytes [Size]byte
}

// New returns a zero-filled guest address space.
func New() *RAM {
	return &RAM{}
}

func checkBounds(addr uint32, size uint32) error {
	if uint64(addr)+uint64(size) > Size {
		return fmt.Errorf("ram: access out of bounds: addr=0x%06x size=%d", addr, size)
	}
	return nil
}

// Read8 reads one byte at addr.
func (r *RAM) Read8(addr uint32) uint8 {
	if err := checkBounds(addr, 1); err != nil {
		panic(err)
	}
	return r.bytes[addr]
}

// Write8 writes one byte at addr.
func (r *RAM) Write8(addr uint32, v uint8) {
	if err := checkBounds(addr, 1); err != nil {
		panic(err)
	}
	r.bytes[addr] = v
}

// Read16 reads a big-endian 16-bit value, returning it in host order.
func (r *RAM) Read16(addr uint32) uint16 {
	if err := checkBounds(addr, 2); err != nil {
		panic(err)
	}
	return binary.BigEndian.Uint16(r.bytes[addr : addr+2])
}

// Write16 writes v (host order) as a big-endian 16-bit value.
func (r *RAM) Write16(addr uint32, v uint16) {
	if err := checkBounds(addr, 2); err != nil {
		panic(err)
	}
	binary.BigEndian.PutUint16(r.bytes[addr:addr+2], v)
}

// Read32 reads a big-endian 32-bit value, returning it in host order.
func (r *RAM) Read32(addr uint32) uint32 {
	if err := checkBounds(addr, 4); err != nil {
		panic(err)
	}
	return binary.BigEndian.Uint32(r.bytes[addr : addr+4])
}

// Write32 writes v (host order) as a big-endian 32-bit value.
func (r *RAM) Write32(addr uint32, v uint32) {
	if err := checkBounds(addr, 4); err != nil {
		panic(err)
	}
	binary.BigEndian.PutUint32(r.bytes[addr:addr+4], v)
}

// BlockFromHost copies src verbatim into guest memory starting at addr.
func (r *RAM) BlockFromHost(addr uint32, src []byte) {
	if err := checkBounds(addr, uint32(len(src))); err != nil {
		panic(err)
	}
	copy(r.bytes[addr:], src)
}

// BlockToHost returns a freshly allocated copy of size bytes starting at addr.
func (r *RAM) BlockToHost(addr uint32, size uint32) []byte {
	if err := checkBounds(addr, size); err != nil {
		panic(err)
	}
	out := make([]byte, size)
	copy(out, r.bytes[addr:addr+size])
	return out
}

// ReadMemory8/16/32 and WriteMemory8/16/32 adapt the accessors above to
// the emulator's required memory-callback signatures, so a CPU backend
// never needs to see the underlying byte slice.

func (r *RAM) ReadMemory8(addr uint32) uint8   { return r.Read8(addr) }
func (r *RAM) ReadMemory16(addr uint32) uint16 { return r.Read16(addr) }
func (r *RAM) ReadMemory32(addr uint32) uint32 { return r.Read32(addr) }

func (r *RAM) WriteMemory8(addr uint32, v uint8)   { r.Write8(addr, v) }
func (r *RAM) WriteMemory16(addr uint32, v uint16) { r.Write16(addr, v) }
func (r *RAM) WriteMemory32(addr uint32, v uint32) { r.Write32(addr, v) }

// MmioRead implements the Unicorn MMIO read-hook signature: given an
// offset into the mapped region and an access size in bytes, it returns
// the value read, widened to uint64.
func (r *RAM) MmioRead(offset uint64, size int) uint64 {
	addr := uint32(offset)
	switch size {
	case 1:
		return uint64(r.Read8(addr))
	case 2:
		return uint64(r.Read16(addr))
	case 4:
		return uint64(r.Read32(addr))
	default:
		panic(fmt.Errorf("ram: unsupported mmio read size %d", size))
	}
}

// MmioWrite implements the Unicorn MMIO write-hook signature.
func (r *RAM) MmioWrite(offset uint64, size int, value int64) {
	addr := uint32(offset)
	switch size {
	case 1:
		r.Write8(addr, uint8(value))
	case 2:
		r.Write16(addr, uint16(value))
	case 4:
		r.Write32(addr, uint32(value))
	default:
		panic(fmt.Errorf("ram: unsupported mmio write size %d", size))
	}
}
