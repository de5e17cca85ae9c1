package optimize

import (
	"errors"
	"fmt"

	"pdfopt/observability"
)

// ErrInvalidParameter is returned for out-of-range quality values or
// unknown preset names, before any file is touched.
var ErrInvalidParameter = errors.New("invalid parameter")

// Preset names accepted by SettingsForPreset.
const (
	PresetWeb     = "web"
	PresetPrint   = "print"
	PresetArchive = "archive"
	PresetMax     = "max"
)

// Settings drive the image recompression policy.
type Settings struct {
	// Quality is the JPEG quality for re-encoded images, 0-100.
	Quality int
	// MaxDimension caps the longest pixel dimension; 0 means no cap.
	MaxDimension int
	// DedupObjects merges identical indirect objects before rewriting.
	DedupObjects bool
	Logger       observability.Logger
}

// SettingsForPreset resolves a preset plus requested quality into concrete
// settings. The preset may clamp the quality (print raises, max lowers) but
// an explicit quality otherwise wins.
func SettingsForPreset(preset string, quality int) (Settings, error) {
	if quality < 0 || quality > 100 {
		return Settings{}, fmt.Errorf("%w: quality %d outside [0,100]", ErrInvalidParameter, quality)
	}
	s := Settings{Quality: quality, DedupObjects: true}
	switch preset {
	case PresetWeb:
		s.MaxDimension = 1920
	case PresetPrint:
		if s.Quality < 85 {
			s.Quality = 85
		}
	case PresetArchive:
		// keep everything at requested quality, no dimension cap
	case PresetMax:
		if s.Quality > 70 {
			s.Quality = 70
		}
		s.MaxDimension = 1024
	default:
		return Settings{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidParameter, preset)
	}
	return s, nil
}

// Validate checks a hand-built Settings value.
func (s Settings) Validate() error {
	if s.Quality < 0 || s.Quality > 100 {
		return fmt.Errorf("%w: quality %d outside [0,100]", ErrInvalidParameter, s.Quality)
	}
	if s.MaxDimension < 0 {
		return fmt.Errorf("%w: negative dimension cap", ErrInvalidParameter)
	}
	return nil
}
