package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// DefaultThreshold is the minimum correlation accepted as a match.
const DefaultThreshold = 0.9

var (
	// ErrNoReferences is returned when the reference directory has no usable image.
	ErrNoReferences = errors.New("no reference frames loaded")
	// ErrNoMatch is returned when no reference correlates above the threshold.
	ErrNoMatch = errors.New("cannot recognize track from frame")
	// ErrTrackMismatch is returned when the recognised track is not the one
	// the setup asked for.
	ErrTrackMismatch = errors.New("track on screen does not match setup")
)

type reference struct {
	code int
	name string
	vec  []float64
}

// Matcher scores frames against reference frames of known tracks.
type Matcher struct {
	refs      []reference
	threshold float64
}

// NewMatcher builds a matcher from already decoded references keyed by track code.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Add registers one reference frame for a track code.
func (m *Matcher) Add(code int, name string, img image.Image) {
	m.refs = append(m.refs, reference{code: code, name: name, vec: signature(Scale(img))})
}

// Len returns the number of loaded references.
func (m *Matcher) Len() int {
	return len(m.refs)
}

// LoadReferences reads every <code>_<n>.png file of dir.
func LoadReferences(dir string, threshold float64) (*Matcher, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading reference dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	m := NewMatcher(threshold)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		code, err := CodeFromName(e.Name())
		if err != nil {
			return nil, err
		}
		img, err := readPNG(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		m.Add(code, e.Name(), img)
	}
	if m.Len() == 0 {
		return nil, ErrNoReferences
	}
	return m, nil
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// CodeFromName extracts the track code from a reference file name.
func CodeFromName(name string) (int, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	head, _, _ := strings.Cut(base, "_")
	code, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("reference %q: bad track code: %w", name, err)
	}
	return code, nil
}

// Match returns the track of the best scoring reference and its score.
func (m *Matcher) Match(img image.Image) (core.Track, float64, error) {
	if len(m.refs) == 0 {
		return core.Track{}, 0, ErrNoReferences
	}
	vec := signature(Scale(img))
	best, bestScore := -1, math.Inf(-1)
	for i, ref := range m.refs {
		if s := correlate(vec, ref.vec); s > bestScore {
			best, bestScore = i, s
		}
	}
	if bestScore < m.threshold {
		return core.Track{}, bestScore, fmt.Errorf("%w: best %.3f", ErrNoMatch, bestScore)
	}
	track, ok := core.TrackByCode(m.refs[best].code)
	if !ok {
		return core.Track{}, bestScore, fmt.Errorf("%w: unknown track code %d", ErrNoMatch, m.refs[best].code)
	}
	return track, bestScore, nil
}

// Check matches img and, when the setup picks the course itself, compares
// the recognised cup and course with it.
func (m *Matcher) Check(img image.Image, setup core.GameSetup) (core.Track, error) {
	track, _, err := m.Match(img)
	if err != nil {
		return core.Track{}, err
	}
	if setup.RaceRuleCourses != core.CoursesChoose {
		return track, nil
	}
	if int(setup.CourseCup) != track.Cup {
		return track, fmt.Errorf("%w: cup %d, want %d", ErrTrackMismatch, track.Cup, setup.CourseCup)
	}
	if int(setup.Course) != track.Course {
		return track, fmt.Errorf("%w: course %d, want %d", ErrTrackMismatch, track.Course, setup.Course)
	}
	return track, nil
}

// Validator checks the live frame against the setup.
type Validator struct {
	Source  Source
	Matcher *Matcher
	Logger  *slog.Logger
}

func (v *Validator) Validate(ctx context.Context, setup core.GameSetup) (core.Track, error) {
	img, err := v.Source.Capture(ctx)
	if err != nil {
		return core.Track{}, err
	}
	track, err := v.Matcher.Check(img, setup)
	if err != nil {
		return track, err
	}
	if v.Logger != nil {
		v.Logger.Info("track recognised", "code", track.Code, "name", track.Name)
	}
	return track, nil
}

// signature mirror-averages the RGB planes and standardises the result.
func signature(img *image.RGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := make([]float64, 0, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := img.PixOffset(x, y)
			b := img.PixOffset(w-1-x, y)
			for c := 0; c < 3; c++ {
				out = append(out, (float64(img.Pix[a+c])+float64(img.Pix[b+c]))/2)
			}
		}
	}
	return standardize(out)
}

func standardize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	mean := sum / float64(len(v))
	var ss float64
	for _, x := range v {
		ss += (x - mean) * (x - mean)
	}
	std := math.Sqrt(ss / float64(len(v)))
	for i := range v {
		if std == 0 {
			v[i] = 0
			continue
		}
		v[i] = (v[i] - mean) / std
	}
	return v
}

func correlate(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s / float64(n)
}
