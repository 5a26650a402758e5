package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/go-containerregistry/pkg/name"
	"gopkg.in/yaml.v3"

	"github.com/northcutted/dock-lens/pkg/types"
)

// ImageRef is an image reference found in a manifest, with its source range.
type ImageRef struct {
	Image string
	Range types.Range
}

// workloadKinds are the Kubernetes kinds whose pod templates are scanned.
var workloadKinds = map[string]bool{
	"Pod":         true,
	"Deployment":  true,
	"StatefulSet": true,
	"DaemonSet":   true,
	"ReplicaSet":  true,
	"Job":         true,
	"CronJob":     true,
}

var containerKeys = map[string]bool{
	"containers":          true,
	"initContainers":      true,
	"ephemeralContainers": true,
}

// ComposeImages returns every `image:` value of a Compose file.
func ComposeImages(data []byte) ([]ImageRef, error) {
	docs, err := decodeAll(data)
	if err != nil {
		return nil, err
	}
	var refs []ImageRef
	for _, doc := range docs {
		walkImages(doc, false, &refs)
	}
	return refs, nil
}

// KubernetesImages returns the container images of every workload in a
// (possibly multi-document) Kubernetes manifest.
func KubernetesImages(data []byte) ([]ImageRef, error) {
	docs, err := decodeAll(data)
	if err != nil {
		return nil, err
	}
	var refs []ImageRef
	for _, doc := range docs {
		if !workloadKinds[kindOf(doc)] {
			continue
		}
		walkImages(doc, true, &refs)
	}
	return refs, nil
}

func decodeAll(data []byte) ([]*yaml.Node, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var docs []*yaml.Node
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		docs = append(docs, &doc)
	}
}

func kindOf(doc *yaml.Node) string {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "kind" {
			return root.Content[i+1].Value
		}
	}
	return ""
}

// walkImages collects `image:` scalars. With containersOnly set, only keys
// inside a containers list count.
func walkImages(n *yaml.Node, containersOnly bool, refs *[]ImageRef) {
	var walk func(n *yaml.Node, inContainers bool)
	walk = func(n *yaml.Node, inContainers bool) {
		switch n.Kind {
		case yaml.DocumentNode, yaml.SequenceNode:
			for _, c := range n.Content {
				walk(c, inContainers)
			}
		case yaml.MappingNode:
			for i := 0; i+1 < len(n.Content); i += 2 {
				key, val := n.Content[i], n.Content[i+1]
				if key.Value == "image" && val.Kind == yaml.ScalarNode && (!containersOnly || inContainers) {
					if ref, ok := imageRef(val); ok {
						*refs = append(*refs, ref)
					}
					continue
				}
				walk(val, containerKeys[key.Value] || (inContainers && val.Kind != yaml.MappingNode))
			}
		case yaml.AliasNode:
			// Aliased values point at nodes already visited.
		}
	}
	walk(n, false)
}

func imageRef(n *yaml.Node) (ImageRef, bool) {
	if n.Value == "" {
		return ImageRef{}, false
	}
	if err := ValidateImageRef(n.Value); err != nil {
		slog.Debug("skipping invalid image reference", "image", n.Value, "line", n.Line, "error", err)
		return ImageRef{}, false
	}
	col := n.Column - 1
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		col++
	}
	line := n.Line - 1
	return ImageRef{
		Image: n.Value,
		Range: types.Range{
			Start: types.Position{Line: line, Character: col},
			End:   types.Position{Line: line, Character: col + len(n.Value)},
		},
	}, true
}

// ValidateImageRef reports whether image parses as an image reference.
func ValidateImageRef(image string) error {
	if _, err := name.ParseReference(image); err != nil {
		return fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	return nil
}

// UniqueImages returns the distinct images of refs in first-seen order.
func UniqueImages(refs []ImageRef) []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range refs {
		if seen[r.Image] {
			continue
		}
		seen[r.Image] = true
		out = append(out, r.Image)
	}
	return out
}

// RangesFor returns the ranges at which image occurs in refs.
func RangesFor(refs []ImageRef, image string) []types.Range {
	var out []types.Range
	for _, r := range refs {
		if r.Image == image {
			out = append(out, r.Range)
		}
	}
	return out
}
