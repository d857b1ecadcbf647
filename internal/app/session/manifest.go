package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/insightcap/internal/codec"
	"github.com/ghalamif/insightcap/internal/domain"
)

const ManifestName = "session.yaml"

// Manifest describes a session directory for later analysis.
type Manifest struct {
	ID        string           `yaml:"id"`
	StartedAt time.Time        `yaml:"started_at"`
	EndedAt   *time.Time       `yaml:"ended_at,omitempty"`
	Streams   []ManifestStream `yaml:"streams"`
	Frame     *FrameGeometry   `yaml:"frame,omitempty"`
}

type ManifestStream struct {
	Name    string   `yaml:"name"`
	File    string   `yaml:"file"`
	Clock   string   `yaml:"clock"`
	Columns []string `yaml:"columns"`
	Rows    uint64   `yaml:"rows"`

	kind domain.StreamKind
}

type FrameGeometry struct {
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	MaxDimension int    `yaml:"max_dimension,omitempty"`
	Dir          string `yaml:"dir"`
}

func newManifest(s *Session, clocks codec.ClockPlan) Manifest {
	m := Manifest{ID: s.ID, StartedAt: s.CreatedAt}
	for _, kind := range s.Capture.EnabledStreams() {
		h := s.handles[kind]
		m.Streams = append(m.Streams, ManifestStream{
			Name:    kind.String(),
			File:    filepath.Base(h.Log.Path()),
			Clock:   string(clocks.For(kind)),
			Columns: domain.Schema(kind),
			Rows:    h.Log.Stats().Rows,
			kind:    kind,
		})
		if kind == domain.CameraFrame {
			m.Frame = &FrameGeometry{
				Width:        s.frames.Width,
				Height:       s.frames.Height,
				MaxDimension: s.frames.MaxDimension,
				Dir:          filepath.Base(h.FrameDir),
			}
		}
	}
	return m
}

func writeManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, ManifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadManifest loads the manifest of a session directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
