// Package correlate pairs image layers with the Dockerfile instructions that
// produced them.
//
// Layer commands in scan results rarely match the instruction text exactly
// (buildkit rewrites RUN into "/bin/sh -c ..."), so pairing only checks that
// the layer command mentions the instruction keyword. Both lists are walked
// from the end; a layer that does not mention the current keyword is
// skipped, and the walk stops at the first FROM since everything below it
// belongs to the base image.
package correlate

import (
	"strings"

	"github.com/northcutted/dock-lens/pkg/parser"
	"github.com/northcutted/dock-lens/pkg/types"
)

// Match is one instruction paired with the layer it produced.
type Match struct {
	Instruction parser.Instruction
	Layer       types.Layer
}

func walk(instructions []parser.Instruction, layers []types.Layer, visit func(parser.Instruction, types.Layer) bool) (from *parser.Instruction) {
	i, j := len(instructions)-1, len(layers)-1
	for i >= 0 && j >= 0 {
		inst := instructions[i]
		if inst.Keyword == "FROM" {
			return &inst
		}
		layer := layers[j]
		if !strings.Contains(layer.Command, inst.Keyword) {
			j--
			continue
		}
		i--
		j--
		if !visit(inst, layer) {
			return nil
		}
	}
	return nil
}

// Layers returns the instruction/layer pairs above the last FROM, from the
// last instruction backwards.
func Layers(instructions []parser.Instruction, layers []types.Layer) []Match {
	var matches []Match
	walk(instructions, layers, func(inst parser.Instruction, layer types.Layer) bool {
		matches = append(matches, Match{Instruction: inst, Layer: layer})
		return true
	})
	return matches
}

// SourceRange finds the instruction that produced the layer with the given
// digest. Layers that belong to the base image resolve to the FROM line.
func SourceRange(instructions []parser.Instruction, layers []types.Layer, digest string) (types.Range, bool) {
	var (
		found bool
		rng   types.Range
	)
	from := walk(instructions, layers, func(inst parser.Instruction, layer types.Layer) bool {
		if layer.Digest == digest {
			found, rng = true, inst.Range
			return false
		}
		return true
	})
	if found {
		return rng, true
	}
	if from != nil {
		return from.Range, true
	}
	return types.Range{}, false
}
