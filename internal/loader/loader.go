// Package loader parses MINIX 1.5's a.out-style executable images,
// lays out a flat text/data/bss/heap image in "click" (256-byte)
// granularity, and applies the guest relocation bytecode stream.
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ClickSize is MINIX's allocation granularity.
const ClickSize = 256

// Accepted header magics.
const (
	MagicCombined = 0x04100301 // text folded into data
	MagicSeparate = 0x04200301
)

const (
	requiredFlags = 0x20
	headerSize    = 32
)

// ErrNotExecutable reports a structural violation in the header or
// relocation stream: bad magic, bad flags, non-zero no_entry, zero
// total size, or a malformed relocation byte.
var ErrNotExecutable = errors.New("loader: not an executable a.out image")

// Header is the 32-byte a.out header, already converted to host order.
type Header struct {
	Magic    uint32
	Flags    uint32
	Text     uint32
	Data     uint32
	Bss      uint32
	NoEntry  uint32
	Total    uint32
	SymsSize uint32
}

// Image is a loaded, relocated executable image ready to be copied into
// guest RAM at the executable base address.
type Image struct {
	Header Header
	Bytes  []byte
}

func clicks(size uint32) uint32 {
	return (size + ClickSize - 1) / ClickSize
}

func readHeader(r io.Reader) (Header, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, fmt.Errorf("loader: reading header: %w", err)
	}
	h := Header{
		Magic:    binary.BigEndian.Uint32(raw[0:4]),
		Flags:    binary.BigEndian.Uint32(raw[4:8]),
		Text:     binary.BigEndian.Uint32(raw[8:12]),
		Data:     binary.BigEndian.Uint32(raw[12:16]),
		Bss:      binary.BigEndian.Uint32(raw[16:20]),
		NoEntry:  binary.BigEndian.Uint32(raw[20:24]),
		Total:    binary.BigEndian.Uint32(raw[24:28]),
		SymsSize: binary.BigEndian.Uint32(raw[28:32]),
	}
	return h, nil
}

func validateHeader(h Header) error {
	if h.Magic != MagicCombined && h.Magic != MagicSeparate {
		return fmt.Errorf("%w: bad magic 0x%08x", ErrNotExecutable, h.Magic)
	}
	if h.Flags != requiredFlags {
		return fmt.Errorf("%w: bad flags 0x%x", ErrNotExecutable, h.Flags)
	}
	if h.NoEntry != 0 {
		return fmt.Errorf("%w: non-zero no_entry field", ErrNotExecutable)
	}
	if h.Total == 0 {
		return fmt.Errorf("%w: zero total size", ErrNotExecutable)
	}
	return nil
}

// Load parses, lays out, and relocates an executable image read from r.
// base is the executable base address (the guest address the image will
// ultimately be placed at), used to patch relocated long words.
func Load(r io.ReaderAt, base uint32) (*Image, error) {
	sr := io.NewSectionReader(r, 0, 1<<62)

	h, err := readHeader(sr)
	if err != nil {
		return nil, err
	}
	if err := validateHeader(h); err != nil {
		return nil, err
	}

	if h.Magic == MagicCombined {
		h.Data = h.Data + h.Text
		h.Text = 0
	}

	textClicks := clicks(h.Text)
	totalClicks := clicks(h.Total)

	image := make([]byte, totalClicks*ClickSize)

	// Text and data immediately follow the 32-byte header.
	if h.Text > 0 {
		if _, err := io.ReadFull(sr, image[0:h.Text]); err != nil {
			return nil, fmt.Errorf("loader: reading text: %w", err)
		}
	}
	dataStart := textClicks * ClickSize
	if h.Data > 0 {
		if _, err := io.ReadFull(sr, image[dataStart:dataStart+h.Data]); err != nil {
			return nil, fmt.Errorf("loader: reading data: %w", err)
		}
	}

	// Skip the symbol table.
	if h.SymsSize > 0 {
		if _, err := io.CopyN(io.Discard, sr, int64(h.SymsSize)); err != nil {
			return nil, fmt.Errorf("loader: skipping symbol table: %w", err)
		}
	}

	if err := applyRelocations(sr, image, base); err != nil {
		return nil, err
	}

	return &Image{Header: h, Bytes: image}, nil
}

// applyRelocations walks the relocation bytecode stream described in
// spec §3: an initial big-endian 32-bit offset; if absent or zero, no
// relocations. Otherwise a byte stream where 0x00 terminates, 0x01
// advances the running offset by 254 without relocating, even bytes
// advance by the value and relocate the long word at the new offset by
// adding base, and odd bytes (other than 0x01) are malformed.
func applyRelocations(r io.Reader, image []byte, base uint32) error {
	var first [4]byte
	n, err := io.ReadFull(r, first[:])
	if err != nil || n < 4 {
		// No relocation stream present: success, no relocations.
		return nil
	}
	offset := binary.BigEndian.Uint32(first[:])
	if offset == 0 {
		return nil
	}
	if err := relocateAt(image, offset, base); err != nil {
		return err
	}

	br := newByteReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			// End of stream with no explicit terminator is tolerated.
			return nil
		}
		if b == 0x00 {
			return nil
		}
		if b == 0x01 {
			offset += 254
			continue
		}
		if b%2 != 0 {
			return fmt.Errorf("%w: malformed relocation byte 0x%02x", ErrNotExecutable, b)
		}
		offset += uint32(b)
		if err := relocateAt(image, offset, base); err != nil {
			return err
		}
	}
}

// relocateAt adds base to the big-endian long word at offset, preserving
// big-endian order on write.
func relocateAt(image []byte, offset uint32, base uint32) error {
	if uint64(offset)+4 > uint64(len(image)) {
		return fmt.Errorf("%w: relocation offset 0x%x out of range", ErrNotExecutable, offset)
	}
	orig := binary.BigEndian.Uint32(image[offset : offset+4])
	binary.BigEndian.PutUint32(image[offset:offset+4], orig+base)
	return nil
}

// byteReader adapts an io.Reader lacking ReadByte to one, without
// pulling in bufio's larger buffering semantics (the relocation stream
// is read one byte at a time by design, and is typically small).
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func newByteReader(r io.Reader) *byteReader { return &byteReader{r: r} }

func (br *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(br.r, br.buf[:]); err != nil {
		return 0, err
	}
	return br.buf[0], nil
}
