package ml

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

const (
	// FormatName marks persisted decision trees.
	FormatName = "fitlife-decision-tree"
	// FormatVersion is the version written by Save.
	FormatVersion = "1.0.0"
	// formatConstraint is the range of versions Load accepts.
	formatConstraint = "^1.0.0"
)

type envelope struct {
	Format  string `json:"format"`
	Version string `json:"version"`
	Schema  Schema `json:"schema"`
	Root    int    `json:"root"`
	Nodes   []Node `json:"nodes"`
}

// Save writes m to w as a versioned JSON document.
func Save(w io.Writer, m *Model) error {
	if m == nil || len(m.nodes) == 0 {
		return errors.New("model not trained")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope{
		Format:  FormatName,
		Version: FormatVersion,
		Schema:  m.schema,
		Root:    m.root,
		Nodes:   m.nodes,
	})
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Model, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, errors.Wrap(err, "decode model")
	}
	if env.Format != FormatName {
		return nil, errors.Wrapf(ErrIncompatibleModelVersion, "unknown format %q", env.Format)
	}
	version, err := semver.NewVersion(env.Version)
	if err != nil {
		return nil, errors.Wrapf(ErrIncompatibleModelVersion, "unparseable version %q", env.Version)
	}
	constraint, err := semver.NewConstraint(formatConstraint)
	if err != nil {
		return nil, err
	}
	if !constraint.Check(version) {
		return nil, errors.Wrapf(ErrIncompatibleModelVersion, "version %s does not satisfy %s", version, formatConstraint)
	}
	if err := env.Schema.Validate(); err != nil {
		return nil, errors.Wrap(ErrCorruptModel, err.Error())
	}
	if err := checkNodes(env.Nodes, env.Root, env.Schema); err != nil {
		return nil, err
	}
	return &Model{schema: env.Schema, nodes: env.Nodes, root: env.Root}, nil
}

// checkNodes enforces the arena invariants traversal depends on. Children must precede their
// parent, which also rules out cycles.
func checkNodes(nodes []Node, root int, schema Schema) error {
	if len(nodes) == 0 {
		return errors.Wrap(ErrCorruptModel, "no nodes")
	}
	if root < 0 || root >= len(nodes) {
		return errors.Wrapf(ErrCorruptModel, "root %d out of range", root)
	}
	classes := len(schema.Labels())
	for i, n := range nodes {
		if n.Label < 0 || n.Label >= classes {
			return errors.Wrapf(ErrCorruptModel, "node %d label %d out of range", i, n.Label)
		}
		if len(n.Distribution) != classes {
			return errors.Wrapf(ErrCorruptModel, "node %d has %d probabilities, want %d", i, len(n.Distribution), classes)
		}
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= schema.FeatureCount() {
			return errors.Wrapf(ErrCorruptModel, "node %d feature %d out of range", i, n.Feature)
		}
		if n.Left < 0 || n.Left >= i || n.Right < 0 || n.Right >= i {
			return errors.Wrapf(ErrCorruptModel, "node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// SaveFile writes m to path through a temporary file so readers never see a partial model.
func SaveFile(path string, m *Model) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	if err := Save(tmp, m); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads a model from path.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
