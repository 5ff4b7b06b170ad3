package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t81dev/hanoivm/pkg/bytecode"
)

var addProgram = []byte{0x01, 0x01, 0x01, 0x07, 0x01, 0x01, 0x01, 0x05, 0x03, 0xFF}

func TestLoadBasics(t *testing.T) {
	p, err := Load(addProgram, Options{})
	require.NoError(t, err)
	assert.Equal(t, len(addProgram), p.Len())
	assert.Len(t, p.Index, 4)
	assert.True(t, strings.HasPrefix(p.Fingerprint, "HVM-"))
	assert.Len(t, p.Fingerprint, 4+28)
}

// TestDigestStability: loading twice yields bit-identical digests and
// fingerprints.
func TestDigestStability(t *testing.T) {
	a, err := Load(addProgram, Options{})
	require.NoError(t, err)
	b, err := Load(append([]byte(nil), addProgram...), Options{})
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

// TestSizeLimitBoundary: exactly the limit loads; one byte over is
// rejected.
func TestSizeLimitBoundary(t *testing.T) {
	atLimit := make([]byte, DefaultSizeLimit) // all NOPs
	_, err := Load(atLimit, Options{})
	require.NoError(t, err)

	over := make([]byte, DefaultSizeLimit+1)
	_, err = Load(over, Options{})
	var tooLarge *ErrProgramTooLarge
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, DefaultSizeLimit+1, tooLarge.Size)

	_, err = Load([]byte{0x00, 0x00, 0x00}, Options{SizeLimit: 2})
	assert.Error(t, err)
}

// TestUnknownOpcode: a single 0xEE byte fails without producing a
// program.
func TestUnknownOpcode(t *testing.T) {
	p, err := Load([]byte{0xEE}, Options{})
	assert.Nil(t, p)
	var ue *bytecode.UnknownOpcodeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, bytecode.Opcode(0xEE), ue.Code)
}

func TestLoadImageHeadered(t *testing.T) {
	img := bytecode.WrapHeader(addProgram, 2)
	p, err := LoadImage(img, Options{})
	require.NoError(t, err)
	assert.True(t, p.Headered)
	assert.Equal(t, uint32(2), p.Version)
	assert.Equal(t, addProgram, p.Bytes)

	raw, err := LoadImage(addProgram, Options{})
	require.NoError(t, err)
	assert.False(t, raw.Headered)
	// The digest covers the payload, so headered and raw images of the
	// same stream agree.
	assert.Equal(t, raw.Digest, p.Digest)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "add.hvm")
	require.NoError(t, os.WriteFile(path, addProgram, 0o644))

	p, err := LoadFile(path, Options{})
	require.NoError(t, err)
	assert.Len(t, p.Index, 4)

	_, err = LoadFile(filepath.Join(dir, "missing.hvm"), Options{})
	assert.Error(t, err)
}

func TestProgramAt(t *testing.T) {
	p, err := Load(addProgram, Options{})
	require.NoError(t, err)
	ins := p.At(8)
	require.NotNil(t, ins)
	assert.Equal(t, bytecode.ADD, ins.Op)
	assert.Nil(t, p.At(3))
}

func TestSessionIds(t *testing.T) {
	p, err := Load(addProgram, Options{})
	require.NoError(t, err)
	a, b := p.NewSession(), p.NewSession()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
	// Both derive from the digest prefix.
	assert.Equal(t, a[:24], b[:24])
}
