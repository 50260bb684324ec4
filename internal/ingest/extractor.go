// Package ingest brings local files into the catalog: tag extraction,
// duration probing, directory scans, playlist files and a filesystem
// watcher that keeps the collection current.
package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// TrackInfo is the raw result of reading one audio file, before any
// catalog resolution.
type TrackInfo struct {
	Title        string
	Album        string
	Artists      []string
	AlbumArtists []string
	Genres       []string
	TrackNumber  int
	DiscNumber   int
	Year         int
	DurationMS   int
	Path         string
	MTime        int64
}

var supportedExtensions = []string{".mp3", ".flac", ".wav", ".m4a", ".ogg", ".opus"}

// Extractor reads tags and probes durations from audio files.
type Extractor struct {
	logger *logrus.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Extractor{logger: logger}
}

// IsAudioFile reports whether the path has a supported audio extension.
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range supportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// ExtractFromFile reads tags and duration from one file. Unreadable tags
// degrade to filename-derived metadata rather than an error; only an
// unreadable file fails.
func (e *Extractor) ExtractFromFile(path string) (TrackInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return TrackInfo{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return TrackInfo{}, err
	}

	info := TrackInfo{
		Path:  path,
		MTime: stat.ModTime().Unix(),
	}

	durationMS, err := e.probeDuration(path)
	if err != nil {
		e.logger.WithError(err).WithField("path", path).Warn("Failed to probe duration")
	}
	info.DurationMS = durationMS

	metadata, err := tag.ReadFrom(f)
	if err != nil {
		e.logger.WithError(err).WithField("path", path).Warn("Failed to read tags, using filename")
		info.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		info.Artists = []string{"Unknown Artist"}
		info.Album = "Unknown Album"
		return info, nil
	}

	info.Title = metadata.Title()
	if info.Title == "" {
		info.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	info.Artists = splitNames(metadata.Artist())
	if len(info.Artists) == 0 {
		info.Artists = []string{"Unknown Artist"}
	}
	info.AlbumArtists = splitNames(metadata.AlbumArtist())
	if len(info.AlbumArtists) == 0 {
		info.AlbumArtists = info.Artists
	}
	info.Album = metadata.Album()
	if info.Album == "" {
		info.Album = "Unknown Album"
	}
	if genre := strings.TrimSpace(metadata.Genre()); genre != "" {
		info.Genres = splitNames(genre)
	}
	info.TrackNumber, _ = metadata.Track()
	info.DiscNumber, _ = metadata.Disc()
	if info.DiscNumber == 0 {
		info.DiscNumber = 1
	}
	info.Year = metadata.Year()

	return info, nil
}

// splitNames breaks a multi-value tag on the common separators.
func splitNames(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ';' || r == '\x00'
	})
	var names []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// probeDuration returns the duration in milliseconds for the formats
// with cheap probes, 0 for the rest.
func (e *Extractor) probeDuration(path string) (int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return e.durationMP3(path)
	case ".flac":
		return e.durationFLAC(path)
	case ".wav":
		return e.durationWAV(path)
	case ".m4a":
		return e.durationM4A(path)
	}
	return 0, nil
}

// durationMP3 sums frame durations; a stream with no decodable frame
// falls back to a bitrate estimate.
func (e *Extractor) durationMP3(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var frame mp3.Frame
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return e.estimateFromSize(path, 192_000)
			}
			break
		}
		total += frame.Duration()
		frames++
	}
	return int(total.Milliseconds()), nil
}

// durationFLAC reads the STREAMINFO block.
func (e *Extractor) durationFLAC(path string) (int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	info := stream.Info
	if info.NSamples == 0 || info.SampleRate == 0 {
		return 0, fmt.Errorf("flac stream missing sample info")
	}
	return int(float64(info.NSamples) / float64(info.SampleRate) * 1000), nil
}

// durationWAV derives the duration from the header and file size.
func (e *Extractor) durationWAV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	const headerSize = 44
	pcmBytes := stat.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	frameSize := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if frameSize <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	frames := pcmBytes / frameSize
	return int(float64(frames) / float64(dec.SampleRate) * 1000), nil
}

// durationM4A scans MP4 atoms for the mvhd timescale and duration.
func (e *Extractor) durationM4A(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	for {
		head := make([]byte, 8)
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, err
		}
		size := binary.BigEndian.Uint32(head[0:4])
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size")
		}
		if string(head[4:8]) != "moov" {
			if _, err := f.Seek(int64(size)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}
		limit := int64(size) - 8
		for read := int64(0); read < limit; {
			subHead := make([]byte, 8)
			if _, err := io.ReadFull(f, subHead); err != nil {
				return 0, err
			}
			subSize := binary.BigEndian.Uint32(subHead[0:4])
			if subSize < 8 {
				return 0, fmt.Errorf("invalid sub-atom size")
			}
			if string(subHead[4:8]) == "mvhd" {
				return readMvhd(f)
			}
			if _, err := f.Seek(int64(subSize)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += int64(subSize)
		}
		return 0, fmt.Errorf("mvhd atom not found")
	}
}

func readMvhd(f *os.File) (int, error) {
	version := make([]byte, 1)
	if _, err := io.ReadFull(f, version); err != nil {
		return 0, err
	}
	var skip int64
	if version[0] == 1 {
		skip = 3 + 8 + 8
	} else {
		skip = 3 + 4 + 4
	}
	if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
		return 0, err
	}
	buf := make([]byte, 8)
	if _, err := io.ReadFull(f, buf); err != nil {
		return 0, err
	}
	timescale := binary.BigEndian.Uint32(buf[0:4])
	units := binary.BigEndian.Uint32(buf[4:8])
	if timescale == 0 {
		return 0, fmt.Errorf("invalid timescale")
	}
	return int(float64(units) / float64(timescale) * 1000), nil
}

// estimateFromSize is the last resort when no frame could be decoded.
func (e *Extractor) estimateFromSize(path string, bitrate int) (int, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return int(stat.Size() * 8 * 1000 / int64(bitrate)), nil
}
