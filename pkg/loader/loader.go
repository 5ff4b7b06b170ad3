// Package loader turns a bytecode blob into an immutable, validated
// Program: opcode index, SHA-256 digest, and the printable fingerprint
// every session id derives from.
package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/t81dev/hanoivm/pkg/bytecode"
)

// DefaultSizeLimit is the loader's program byte cap.
const DefaultSizeLimit = 65536

// ErrProgramTooLarge rejects programs above the configured size limit.
type ErrProgramTooLarge struct {
	Size  int
	Limit int
}

func (e *ErrProgramTooLarge) Error() string {
	return fmt.Sprintf("program is %d bytes, limit %d", e.Size, e.Limit)
}

// Program is an immutable loaded bytecode image. The byte slice and index
// are never mutated after Load and may be shared across goroutines.
type Program struct {
	Bytes       []byte
	Digest      [sha256.Size]byte
	Fingerprint string
	Index       []bytecode.Instruction
	Version     uint32 // container header version; zero for raw streams
	Headered    bool
}

// Len returns the program's byte length.
func (p *Program) Len() int {
	return len(p.Bytes)
}

// At returns the index entry starting at byte offset off, or nil.
func (p *Program) At(off int) *bytecode.Instruction {
	// The index is sorted by offset; binary search.
	lo, hi := 0, len(p.Index)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case p.Index[mid].Offset == off:
			return &p.Index[mid]
		case p.Index[mid].Offset < off:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return nil
}

// Options tunes the loader. The zero value uses defaults.
type Options struct {
	SizeLimit int // maximum program bytes; DefaultSizeLimit when zero
}

func (o Options) limit() int {
	if o.SizeLimit > 0 {
		return o.SizeLimit
	}
	return DefaultSizeLimit
}

// Load validates a raw instruction stream (container header already
// stripped) and produces the Program.
func Load(data []byte, opts Options) (*Program, error) {
	if len(data) > opts.limit() {
		return nil, &ErrProgramTooLarge{Size: len(data), Limit: opts.limit()}
	}
	index, err := bytecode.Decode(data)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	p := &Program{
		Bytes:       append([]byte(nil), data...),
		Digest:      digest,
		Fingerprint: fingerprint(digest),
		Index:       index,
	}
	glog.V(1).Infof("loaded program %s: %d bytes, %d instructions",
		p.Fingerprint, len(data), len(index))
	return p, nil
}

// LoadImage strips an optional container header, then loads.
func LoadImage(data []byte, opts Options) (*Program, error) {
	payload, version, headered, err := bytecode.StripHeader(data)
	if err != nil {
		return nil, err
	}
	p, err := Load(payload, opts)
	if err != nil {
		return nil, err
	}
	p.Version = version
	p.Headered = headered
	return p, nil
}

// LoadFile reads and loads a bytecode image from disk.
func LoadFile(path string, opts Options) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return LoadImage(data, opts)
}

// fingerprint derives the printable program tag from the digest alone, so
// it is stable across runs and hosts.
func fingerprint(digest [sha256.Size]byte) string {
	return "HVM-" + hex.EncodeToString(digest[:14])
}

// sessionCounter distinguishes sessions of the same program within one
// process.
var sessionCounter atomic.Uint64

// NewSession derives a 32-character printable session id from the
// program's digest plus a process-local counter.
func (p *Program) NewSession() string {
	n := sessionCounter.Add(1)
	return fmt.Sprintf("%s-%07d", hex.EncodeToString(p.Digest[:12]), n%10000000)
}
