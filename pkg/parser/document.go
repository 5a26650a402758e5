package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind identifies what sort of manifest a document is.
type Kind int

const (
	KindUnknown Kind = iota
	KindDockerfile
	KindCompose
	KindKubernetes
)

func (k Kind) String() string {
	switch k {
	case KindDockerfile:
		return "dockerfile"
	case KindCompose:
		return "compose"
	case KindKubernetes:
		return "kubernetes"
	}
	return "unknown"
}

var composeName = regexp.MustCompile(`^(docker-)?compose([.-].*)?\.ya?ml$`)

// Document is a manifest loaded from disk.
type Document struct {
	Path string
	Kind Kind
	Text string
}

// ID is the key the document is tracked under.
func (d *Document) ID() string {
	return d.Path
}

// Lines splits the document text into lines.
func (d *Document) Lines() []string {
	return strings.Split(d.Text, "\n")
}

// LoadDocument reads path and detects its kind.
func LoadDocument(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &Document{Path: abs, Kind: DetectKind(abs, data), Text: string(data)}, nil
}

// DetectKind guesses the manifest kind from the file name, and for generic
// YAML files from the Kubernetes kind field.
func DetectKind(path string, data []byte) Kind {
	base := filepath.Base(path)
	lower := strings.ToLower(base)

	switch {
	case base == "Dockerfile", base == "Containerfile",
		strings.HasPrefix(base, "Dockerfile."), strings.HasPrefix(base, "Containerfile."),
		strings.HasSuffix(lower, ".dockerfile"), strings.HasSuffix(lower, ".containerfile"):
		return KindDockerfile
	case composeName.MatchString(lower):
		return KindCompose
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		docs, err := decodeAll(data)
		if err != nil {
			return KindUnknown
		}
		for _, doc := range docs {
			if workloadKinds[kindOf(doc)] {
				return KindKubernetes
			}
		}
	}
	return KindUnknown
}
