package metadata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

var (
	// ErrUnsupportedFormat is returned for containers the probe cannot read.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNoFrames is returned when a file holds no decodable audio frames.
	ErrNoFrames = errors.New("no audio frames found")
)

// Tags holds the embedded tag values used as fallbacks for episode metadata.
type Tags struct {
	Title  string
	Artist string
}

// ProbeDuration returns the playback length of the audio file in whole
// seconds, computed from its frame count and sample rate.
func ProbeDuration(path string) (int64, error) {
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	frames, rate, err := countMP3Frames(f)
	if err != nil {
		return 0, err
	}
	return DurationSeconds(frames, rate)
}

// DurationSeconds converts a frame count at the given sample rate into whole
// seconds, truncating any fraction.
func DurationSeconds(frames int64, sampleRate int) (int64, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if frames < 0 {
		return 0, fmt.Errorf("invalid frame count %d", frames)
	}
	return frames / int64(sampleRate), nil
}

// FormatDuration renders seconds as H:MM:SS with unpadded hours.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
}

// countMP3Frames walks every MPEG frame and returns the total number of PCM
// sample frames together with the sample rate of the stream.
func countMP3Frames(r io.Reader) (int64, int, error) {
	decoder := mp3.NewDecoder(r)
	var frame mp3.Frame
	var skipped int
	var samples int64
	rate := 0

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// A truncated last frame ends the stream.
			if errors.Is(err, io.ErrUnexpectedEOF) && samples > 0 {
				break
			}
			return 0, 0, err
		}
		if rate == 0 {
			rate = int(frame.Header().SampleRate())
		}
		samples += int64(frame.Samples())
	}

	if samples == 0 || rate <= 0 {
		return 0, 0, ErrNoFrames
	}
	return samples, rate, nil
}

// ReadTags returns the embedded title and artist. Files without readable tags
// yield empty values.
func ReadTags(path string) Tags {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}
	}

	return Tags{
		Title:  strings.TrimSpace(meta.Title()),
		Artist: strings.TrimSpace(meta.Artist()),
	}
}
