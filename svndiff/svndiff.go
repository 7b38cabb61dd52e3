// Package svndiff implements the svndiff0 window format SVN's editor
// protocol uses for applyTextDelta. No suitable third-party library speaks
// this binary format, so the window encoding and decoding here are written
// from scratch; EncodeDiff uses sergi/go-diff only to find unchanged runs.
// See DESIGN.md for why no dependency could serve the format itself.
package svndiff

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Magic is the four-byte svndiff0 header.
var Magic = []byte{'S', 'V', 'N', 0}

const (
	opSourceCopy = 0
	opTargetCopy = 1
	opInsert     = 2
)

// Apply reconstructs the target content given source (the base content a
// delta was computed against, possibly nil for a brand new file) and a
// concatenation of one or more svndiff0 windows.
func Apply(source []byte, delta []byte) ([]byte, error) {
	r := bytes.NewReader(delta)
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("svndiff: short header: %w", err)
	}
	if !bytes.Equal(header, Magic) {
		return nil, fmt.Errorf("svndiff: bad magic %x", header)
	}

	var target bytes.Buffer
	for r.Len() > 0 {
		if err := applyWindow(source, r, &target); err != nil {
			return nil, err
		}
	}
	return target.Bytes(), nil
}

func applyWindow(source []byte, r *bytes.Reader, target *bytes.Buffer) error {
	sourceOffset, err := readInt(r)
	if err != nil {
		return err
	}
	sourceLen, err := readInt(r)
	if err != nil {
		return err
	}
	_, err = readInt(r) // target view length; derivable from instructions, not needed to apply
	if err != nil {
		return err
	}
	instrLen, err := readInt(r)
	if err != nil {
		return err
	}
	newDataLen, err := readInt(r)
	if err != nil {
		return err
	}

	instrBytes := make([]byte, instrLen)
	if _, err := io.ReadFull(r, instrBytes); err != nil {
		return fmt.Errorf("svndiff: instructions: %w", err)
	}
	newData := make([]byte, newDataLen)
	if _, err := io.ReadFull(r, newData); err != nil {
		return fmt.Errorf("svndiff: new data: %w", err)
	}

	var sourceView []byte
	if sourceLen > 0 {
		if sourceOffset+sourceLen > int64(len(source)) {
			return fmt.Errorf("svndiff: source view out of range")
		}
		sourceView = source[sourceOffset : sourceOffset+sourceLen]
	}

	windowStart := target.Len()
	ir := bytes.NewReader(instrBytes)
	nr := bytes.NewReader(newData)
	for ir.Len() > 0 {
		opByte, err := ir.ReadByte()
		if err != nil {
			return err
		}
		op := (opByte >> 6) & 0x3
		length := int64(opByte & 0x3f)
		if length == 0 {
			length, err = readInt(ir)
			if err != nil {
				return err
			}
		}
		switch op {
		case opSourceCopy:
			offset, err := readInt(ir)
			if err != nil {
				return err
			}
			if offset+length > int64(len(sourceView)) {
				return fmt.Errorf("svndiff: source copy out of range")
			}
			target.Write(sourceView[offset : offset+length])
		case opTargetCopy:
			offset, err := readInt(ir)
			if err != nil {
				return err
			}
			start := windowStart + int(offset)
			full := target.Bytes()
			for i := int64(0); i < length; i++ {
				target.WriteByte(full[start+int(i)])
				full = target.Bytes()
			}
		case opInsert:
			buf := make([]byte, length)
			if _, err := io.ReadFull(nr, buf); err != nil {
				return fmt.Errorf("svndiff: insert: %w", err)
			}
			target.Write(buf)
		default:
			return fmt.Errorf("svndiff: unknown opcode %d", op)
		}
	}
	return nil
}

// Encode produces a single-window svndiff0 delta that, applied to source,
// reconstructs target. It encodes target as one literal insert, with no
// source-copy compression; the result is still a valid, decodable window.
// report's update/diff responses use EncodeDiff instead.
func Encode(source, target []byte) []byte {
	var out bytes.Buffer
	out.Write(Magic)

	var instr bytes.Buffer
	writeInsertOp(&instr, int64(len(target)))

	writeInt(&out, 0)                    // source offset
	writeInt(&out, 0)                    // source length
	writeInt(&out, int64(len(target)))   // target view length
	writeInt(&out, int64(instr.Len()))   // instructions length
	writeInt(&out, int64(len(target)))   // new data length
	out.Write(instr.Bytes())
	out.Write(target)
	return out.Bytes()
}

// EncodeDiff produces a single-window svndiff0 delta from source to target
// using a byte-level diff to emit source-copy instructions for unchanged
// runs and insert instructions for changed ones, instead of Encode's single literal
// insert — report uses this so update/diff responses over a slow link
// don't resend unchanged file content.
func EncodeDiff(source, target []byte) []byte {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(source), string(target), false)

	var instr bytes.Buffer
	var newData bytes.Buffer
	sourceOffset := int64(0)
	for _, d := range diffs {
		n := int64(len(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			writeSourceCopyOp(&instr, sourceOffset, n)
			sourceOffset += n
		case diffmatchpatch.DiffDelete:
			sourceOffset += n
		case diffmatchpatch.DiffInsert:
			writeInsertOp(&instr, n)
			newData.WriteString(d.Text)
		}
	}

	var out bytes.Buffer
	out.Write(Magic)
	writeInt(&out, 0)                        // source offset
	writeInt(&out, int64(len(source)))       // source length
	writeInt(&out, int64(len(target)))       // target view length
	writeInt(&out, int64(instr.Len()))       // instructions length
	writeInt(&out, int64(newData.Len()))     // new data length
	out.Write(instr.Bytes())
	out.Write(newData.Bytes())
	return out.Bytes()
}

func writeSourceCopyOp(w *bytes.Buffer, offset, length int64) {
	if length < 0x3f {
		w.WriteByte(byte(opSourceCopy<<6) | byte(length))
	} else {
		w.WriteByte(byte(opSourceCopy << 6))
		writeInt(w, length)
	}
	writeInt(w, offset)
}

func writeInsertOp(w *bytes.Buffer, length int64) {
	// An inline length of 0 means "length follows", so 0 takes the long form.
	if length > 0 && length < 0x3f {
		w.WriteByte(byte(opInsert<<6) | byte(length))
		return
	}
	w.WriteByte(byte(opInsert << 6))
	writeInt(w, length)
}

// readInt reads an unsigned big-endian base-128 integer, matching
// svndiff's variable-length integer encoding (high bit set = continue)
// as written by writeInt.
func readInt(r *bytes.Reader) (int64, error) {
	var result int64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("svndiff: truncated integer: %w", err)
		}
		result = (result << 7) | int64(b&0x7f)
		if b&0x80 == 0 {
			break
		}
	}
	return result, nil
}

// writeInt writes v as svndiff's big-endian base-128 varint (continuation
// bit set on every byte but the last), the reverse group order of Go's
// standard little-endian binary.Uvarint.
func writeInt(w *bytes.Buffer, v int64) {
	var out []byte
	rest := uint64(v)
	out = append(out, byte(rest&0x7f))
	rest >>= 7
	for rest > 0 {
		out = append(out, byte(rest&0x7f)|0x80)
		rest >>= 7
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	w.Write(out)
}

