// Package disasm renders a loaded program as a structural and textual
// listing. The structural view is exactly the loader's opcode index, so
// re-assembling a disassembly reproduces the original bytes.
package disasm

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/t81dev/hanoivm/pkg/bytecode"
	"github.com/t81dev/hanoivm/pkg/loader"
)

// Record is one disassembled instruction.
type Record struct {
	Addr     int
	Mnemonic string
	Raw      []byte
	Operands []string
}

// Disassemble produces one record per opcode index entry.
func Disassemble(p *loader.Program) []Record {
	out := make([]Record, 0, len(p.Index))
	for i, ins := range p.Index {
		end := p.Len()
		if i+1 < len(p.Index) {
			end = p.Index[i+1].Offset
		}
		rec := Record{
			Addr:     ins.Offset,
			Mnemonic: ins.Op.Name(),
			Raw:      p.Bytes[ins.Offset:end],
		}
		for _, o := range ins.Operands {
			rec.Operands = append(rec.Operands, o.String())
		}
		out = append(out, rec)
	}
	return out
}

// Assemble re-serializes a program's structural view. For any loaded
// program this returns its original bytes.
func Assemble(p *loader.Program) ([]byte, error) {
	return bytecode.Encode(p.Index)
}

// Format renders records as a stable plain-text listing, one line per
// instruction: address, raw bytes, mnemonic, operands.
func Format(recs []Record) string {
	var sb strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&sb, "%04X  %-24s %s", r.Addr, hexBytes(r.Raw), r.Mnemonic)
		if len(r.Operands) > 0 {
			sb.WriteByte(' ')
			sb.WriteString(strings.Join(r.Operands, ", "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatColor renders the same listing with color-coded columns.
func FormatColor(recs []Record) string {
	addr := color.New(color.FgCyan)
	raw := color.New(color.Faint)
	mnem := color.New(color.FgYellow, color.Bold)
	var sb strings.Builder
	for _, r := range recs {
		sb.WriteString(addr.Sprintf("%04X", r.Addr))
		sb.WriteString("  ")
		sb.WriteString(raw.Sprintf("%-24s", hexBytes(r.Raw)))
		sb.WriteByte(' ')
		sb.WriteString(mnem.Sprint(r.Mnemonic))
		if len(r.Operands) > 0 {
			sb.WriteByte(' ')
			sb.WriteString(strings.Join(r.Operands, ", "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// hexBytes renders raw encoding bytes, truncating long operand bodies.
func hexBytes(raw []byte) string {
	const maxShown = 8
	parts := make([]string, 0, maxShown+1)
	for i, b := range raw {
		if i == maxShown {
			parts = append(parts, "..")
			break
		}
		parts = append(parts, fmt.Sprintf("%02X", b))
	}
	return strings.Join(parts, " ")
}
