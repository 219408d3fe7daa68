// Package program implements the ProgramBuilder (spec section 4.I):
// packages post-optimization instructions, their spans, and the constant
// pool into a runnable Executable, separating a rich debug build from a
// compacted release build. JSON persistence follows the teacher's
// deterministic-serialization idiom (internal/iface/json.go) rather than a
// hand-rolled binary format.
package program

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schemecore/schemecore/internal/ast"
	"github.com/schemecore/schemecore/internal/codegen"
	"github.com/schemecore/schemecore/internal/constmap"
)

// Version is the persisted executable format's version tag. Spec section
// 6 is explicit that this format is not portable across compiler versions;
// bumping it is a breaking change by design, not an oversight.
const Version = "schemecore-exe/1"

// Block is one top-level expression's compiled form.
type Block struct {
	Instructions      []codegen.Instruction      `json:"instructions,omitempty"`
	DenseInstructions []codegen.DenseInstruction `json:"dense,omitempty"`
	Spans             []ast.Span                 `json:"spans"`
}

// Executable is the packaged, runnable program a VM (external collaborator)
// consumes.
type Executable struct {
	Version   string       `json:"version"`
	BuildID   string       `json:"build_id"`
	Timestamp int64        `json:"timestamp"`
	Debug     bool         `json:"debug"`
	Blocks    []Block      `json:"blocks"`
	Constants *constmap.Map `json:"constants"`
}

// Builder packages compiled instruction vectors into an Executable.
type Builder struct {
	now func() int64
}

// New creates a Builder. now is injectable for deterministic tests; nil
// defaults to time.Now().Unix().
func New(now func() int64) *Builder {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Builder{now: now}
}

// DebugBuild packages blocks retaining the rich Instruction form, so
// Disassemble can render a full listing.
func (b *Builder) DebugBuild(blocks [][]codegen.Instruction, constants *constmap.Map) *Executable {
	exe := &Executable{
		Version:   Version,
		BuildID:   uuid.NewString(),
		Timestamp: b.now(),
		Debug:     true,
		Constants: constants,
	}
	for _, insns := range blocks {
		exe.Blocks = append(exe.Blocks, Block{Instructions: insns, Spans: spansOf(insns)})
	}
	return exe
}

// Build compacts blocks into DenseInstruction form: an 8-bit opcode and a
// 24-bit payload, with spans moved to a parallel vector.
func (b *Builder) Build(blocks [][]codegen.Instruction, constants *constmap.Map) *Executable {
	exe := &Executable{
		Version:   Version,
		BuildID:   uuid.NewString(),
		Timestamp: b.now(),
		Debug:     false,
		Constants: constants,
	}
	for _, insns := range blocks {
		dense := make([]codegen.DenseInstruction, len(insns))
		for i, in := range insns {
			dense[i] = codegen.DenseInstruction{Op: in.Op, Payload: uint32(in.PayloadSize) & 0xFFFFFF}
		}
		exe.Blocks = append(exe.Blocks, Block{DenseInstructions: dense, Spans: spansOf(insns)})
	}
	return exe
}

func spansOf(insns []codegen.Instruction) []ast.Span {
	spans := make([]ast.Span, len(insns))
	for i, in := range insns {
		if in.Syn != nil {
			spans[i] = in.Syn.Span
		}
	}
	return spans
}

// ToJSON serializes exe deterministically.
func (exe *Executable) ToJSON(compact bool) (string, error) {
	var data []byte
	var err error
	if compact {
		data, err = json.Marshal(exe)
	} else {
		data, err = json.MarshalIndent(exe, "", "  ")
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Disassemble renders steel's `idx OPCODE payload ; span` listing for a
// debug build, one `-- block N --` section per block. For a release build,
// since Build discards the rich form, each block's section holds only a
// "<no debug instructions available>" line.
func (exe *Executable) Disassemble() string {
	var sb strings.Builder
	for bi, block := range exe.Blocks {
		fmt.Fprintf(&sb, "-- block %d --\n", bi)
		if len(block.Instructions) == 0 {
			sb.WriteString("  <no debug instructions available>\n")
			continue
		}
		for i, in := range block.Instructions {
			span := ""
			if in.Syn != nil {
				span = in.Syn.Span.Start.String()
			}
			if in.Name != "" {
				fmt.Fprintf(&sb, "%4d  %-16s %-10s ; %s\n", i, in.Op, in.Name, span)
			} else {
				fmt.Fprintf(&sb, "%4d  %-16s %-10d ; %s\n", i, in.Op, in.PayloadSize, span)
			}
		}
	}
	return sb.String()
}
