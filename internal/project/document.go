// Package project persists the track graph as a JSON or YAML document and
// keeps the live workspace snapshot.
package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/satindergrewal/segue/internal/graph"
)

// Version is written by Save. Documents without a version, or with
// version 1, are read through the legacy importer.
const Version = 2

// Document is the on-disk layout. It mirrors the graph field for field.
type Document struct {
	Version     int                `json:"version" yaml:"version"`
	Assets      map[string]string  `json:"assets" yaml:"assets"`
	UnitWeights map[string]float64 `json:"unitWeights" yaml:"unitWeights"`
	Thresholds  map[string]float64 `json:"thresholds" yaml:"thresholds"`
	Tracks      []graph.Track      `json:"tracks" yaml:"tracks"`
}

type Format int

const (
	JSON Format = iota
	YAML
)

// FormatFor picks the codec from the file extension; anything that is
// not .yaml or .yml is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// FromGraph builds the document for a snapshot. Tracks are written in
// display order.
func FromGraph(g *graph.Graph) Document {
	doc := Document{
		Version:     Version,
		Assets:      make(map[string]string),
		UnitWeights: g.UnitWeights(),
		Thresholds:  g.Thresholds(),
		Tracks:      g.Tracks(),
	}
	for _, a := range g.Assets() {
		doc.Assets[a.ID] = a.SourcePath
	}
	if doc.UnitWeights == nil {
		doc.UnitWeights = map[string]float64{}
	}
	if doc.Thresholds == nil {
		doc.Thresholds = map[string]float64{}
	}
	if doc.Tracks == nil {
		doc.Tracks = []graph.Track{}
	}
	return doc
}

// Graph assembles the snapshot described by the document.
func (d Document) Graph() (*graph.Graph, error) {
	ids := make([]string, 0, len(d.Assets))
	for id := range d.Assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	assets := make([]graph.MusicAsset, 0, len(ids))
	for _, id := range ids {
		assets = append(assets, graph.MusicAsset{ID: id, SourcePath: d.Assets[id]})
	}
	return graph.Build(assets, d.Tracks, d.UnitWeights, d.Thresholds)
}

// Encode serialises g. It refuses a graph with violations.
func Encode(g *graph.Graph, f Format) ([]byte, error) {
	if err := g.Check(); err != nil {
		return nil, err
	}
	doc := FromGraph(g)
	if f == YAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}

type versionHeader struct {
	Version int `json:"version" yaml:"version"`
}

// Decode parses a document. Older JSON documents are converted through
// ImportLegacy. The result is not validated; callers decide when to Check.
func Decode(data []byte, f Format) (*graph.Graph, error) {
	var hdr versionHeader
	var doc Document
	if f == YAML {
		if err := yaml.Unmarshal(data, &hdr); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if hdr.Version > Version {
			return nil, fmt.Errorf("document version %d is newer than %d", hdr.Version, Version)
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		return doc.Graph()
	}

	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	switch {
	case hdr.Version > Version:
		return nil, fmt.Errorf("document version %d is newer than %d", hdr.Version, Version)
	case hdr.Version < Version:
		return ImportLegacy(data)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return doc.Graph()
}

// Load reads and decodes the document at path.
func Load(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	g, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return g, nil
}

// Save validates g and writes it to path through a temp file and rename,
// so a reader never sees a half-written document.
func Save(path string, g *graph.Graph) error {
	_, err := save(path, g)
	return err
}

func save(path string, g *graph.Graph) ([]byte, error) {
	data, err := Encode(g, FormatFor(path))
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("write project: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write project: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write project: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write project: %w", err)
	}
	return data, nil
}

// Result is what the editor surface gets back from a load or save.
type Result struct {
	OK         bool              `json:"ok"`
	Reason     string            `json:"reason,omitempty"`
	Violations []graph.Violation `json:"violations,omitempty"`
}

// ResultOf turns an error into a Result with a readable reason.
func ResultOf(err error) Result {
	if err == nil {
		return Result{OK: true}
	}
	res := Result{Reason: err.Error()}
	var verr *graph.ValidationError
	if errors.As(err, &verr) {
		res.Violations = verr.Violations
	}
	return res
}
