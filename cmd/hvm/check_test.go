package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCheckAll(t *testing.T) {
	dir := t.TempDir()
	good := writeImage(t, dir, "good.hvm",
		[]byte{0x01, 0x01, 0x01, 0x07, 0x01, 0x01, 0x01, 0x05, 0x03, 0xFF})
	bad := writeImage(t, dir, "bad.hvm", []byte{0xEE})
	nop := writeImage(t, dir, "nop.hvm", []byte{0x00, 0xFF})

	results := checkAll([]string{good, bad, nop}, 2)
	require.Len(t, results, 3)

	// Results come back in input order regardless of worker scheduling.
	assert.Equal(t, good, results[0].Path)
	assert.Equal(t, bad, results[1].Path)
	assert.Equal(t, nop, results[2].Path)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, 4, results[0].Instructions)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
}

func TestLoadErrKind(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data []byte
		kind string
	}{
		{"unknown.hvm", []byte{0xEE}, "UnknownOpcode"},
		{"tag.hvm", []byte{0x10, 0x0A, 0x00}, "TagMismatch"},
		{"malformed.hvm", []byte{0x01, 0x01, 0x03}, "MalformedOperand"},
	}
	for _, tc := range tests {
		path := writeImage(t, dir, tc.name, tc.data)
		r := checkOne(path)
		require.Error(t, r.Err)
		assert.Equal(t, tc.kind, loadErrKind(r.Err), tc.name)
	}
}
