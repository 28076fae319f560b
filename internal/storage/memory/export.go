// internal/storage/memory/export.go
package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/geo"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/util"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// ExportVersion is bumped on incompatible changes to Export.
const ExportVersion = 1

// Export is the root JSON structure of an episode file.
type Export struct {
	Version  int                 `json:"version"`
	Metadata core.ExportMetadata `json:"metadata"`
	Episode  core.Episode        `json:"episode"`
	// Distance is the ground distance covered, in game units.
	Distance float64           `json:"distance"`
	Path     []core.Position3D `json:"path"`
	Steps    []core.Step       `json:"steps"`
}

// BuildExport assembles the export of a finished episode.
func BuildExport(ep core.Episode, steps []core.Step) Export {
	var tr geo.Trajectory
	for _, s := range steps {
		tr.AddStep(s)
	}
	return newExport(ep, steps, &tr)
}

func newExport(ep core.Episode, steps []core.Step, tr *geo.Trajectory) Export {
	ls := tr.LineString()
	if steps == nil {
		steps = []core.Step{}
	}
	return Export{
		Version:  ExportVersion,
		Metadata: ep.Metadata(),
		Episode:  ep,
		Distance: ls.Length(),
		Path:     geo.PositionsFromLineString(ls),
		Steps:    steps,
	}
}

// FileName returns the export file name of an episode.
func FileName(ep core.Episode, compress bool) string {
	track := ""
	if t, ok := core.TrackByCode(ep.TrackCode); ok {
		track = t.Name
	}
	name := util.ExportFileName(ep.StartedAt, ep.InstanceID, track, ep.ID.String()) + ".json"
	if compress {
		name += ".gz"
	}
	return name
}

// WriteExport writes data into dir and returns the file path.
func WriteExport(dir string, data Export, compress bool) (string, error) {
	path := filepath.Join(dir, FileName(data.Episode, compress))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return "", fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	return path, f.Close()
}

// ReadExport reads an export file written by WriteExport. Files ending in
// .gz are decompressed.
func ReadExport(path string) (Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return Export{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Export{}, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var data Export
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return Export{}, fmt.Errorf("failed to decode export %s: %w", path, err)
	}
	if data.Version != ExportVersion {
		return Export{}, fmt.Errorf("unsupported export version %d", data.Version)
	}
	return data, nil
}
