package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"github.com/northcutted/dock-lens/pkg/types"
)

// Instruction is one Dockerfile instruction with its source range.
type Instruction struct {
	Keyword  string // upper case, e.g. "RUN"
	Args     []string
	Flags    []string
	Original string
	Range    types.Range
}

// BuildArg is an ARG declaration.
type BuildArg struct {
	Name       string
	Default    string
	HasDefault bool
}

// Dockerfile is a parsed Dockerfile.
type Dockerfile struct {
	Instructions []Instruction
	lines        []string
}

// ParseDockerfile parses Dockerfile content using the BuildKit parser.
func ParseDockerfile(r io.Reader) (*Dockerfile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read Dockerfile: %w", err)
	}

	res, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Dockerfile: %w", err)
	}

	df := &Dockerfile{lines: strings.Split(string(data), "\n")}
	for _, node := range res.AST.Children {
		inst := Instruction{
			Keyword:  strings.ToUpper(node.Value),
			Flags:    node.Flags,
			Original: node.Original,
			Range:    df.lineRange(node.StartLine, node.EndLine),
		}
		for n := node.Next; n != nil; n = n.Next {
			inst.Args = append(inst.Args, n.Value)
		}
		df.Instructions = append(df.Instructions, inst)
	}
	return df, nil
}

// ParseDockerfileFile reads and parses the Dockerfile at path.
func ParseDockerfileFile(path string) (*Dockerfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Dockerfile: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseDockerfile(f)
}

// lineRange converts BuildKit's 1-based inclusive line numbers into a range
// that starts at the first non-blank character and ends at the end of the
// last line.
func (d *Dockerfile) lineRange(start, end int) types.Range {
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}
	first := d.line(start - 1)
	last := d.line(end - 1)
	indent := len(first) - len(strings.TrimLeft(first, " \t"))
	return types.Range{
		Start: types.Position{Line: start - 1, Character: indent},
		End:   types.Position{Line: end - 1, Character: len(strings.TrimRight(last, "\r"))},
	}
}

func (d *Dockerfile) line(i int) string {
	if i < 0 || i >= len(d.lines) {
		return ""
	}
	return d.lines[i]
}

// BaseImage returns the image of the last FROM instruction, which is the
// stage the built image is based on. ARG defaults declared before the first
// FROM are substituted. ok is false for scratch or when there is no FROM.
func (d *Dockerfile) BaseImage() (inst Instruction, image string, ok bool) {
	globals := map[string]string{}
	seenFrom := false
	found := false
	for _, in := range d.Instructions {
		switch in.Keyword {
		case "ARG":
			if seenFrom {
				continue
			}
			for _, a := range parseArgs(in.Args) {
				if a.HasDefault {
					globals[a.Name] = a.Default
				}
			}
		case "FROM":
			seenFrom = true
			if len(in.Args) == 0 {
				continue
			}
			inst = in
			image = os.Expand(in.Args[0], func(k string) string { return globals[k] })
			found = true
		}
	}
	if !found || image == "" || image == "scratch" {
		return Instruction{}, "", false
	}
	return inst, image, true
}

// Args returns every ARG declared in the Dockerfile, in order, without
// duplicates.
func (d *Dockerfile) Args() []BuildArg {
	var out []BuildArg
	seen := map[string]bool{}
	for _, in := range d.Instructions {
		if in.Keyword != "ARG" {
			continue
		}
		for _, a := range parseArgs(in.Args) {
			if seen[a.Name] {
				continue
			}
			seen[a.Name] = true
			out = append(out, a)
		}
	}
	return out
}

func parseArgs(args []string) []BuildArg {
	var out []BuildArg
	for _, raw := range args {
		name, def, has := strings.Cut(raw, "=")
		if name == "" {
			continue
		}
		out = append(out, BuildArg{Name: name, Default: strings.Trim(def, `"'`), HasDefault: has})
	}
	return out
}
