package ingest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cantata/internal/bus"
	"cantata/internal/catalog"
	"cantata/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIsAudioFile(t *testing.T) {
	assert.True(t, IsAudioFile("/music/song.MP3"))
	assert.True(t, IsAudioFile("/music/song.flac"))
	assert.True(t, IsAudioFile("song.opus"))
	assert.False(t, IsAudioFile("/music/cover.jpg"))
	assert.False(t, IsAudioFile("/music/notes.txt"))
	assert.False(t, IsAudioFile("/music/song"))
}

func TestFileURI(t *testing.T) {
	uri := FileURI("/music/album/01.flac")
	assert.Equal(t, "file:///music/album/01.flac", uri)
	assert.True(t, strings.HasPrefix(FileURI("relative.mp3"), "file:///"))
}

func TestSplitNames(t *testing.T) {
	assert.Equal(t, []string{"Miles Davis", "John Coltrane"}, splitNames("Miles Davis; John Coltrane"))
	assert.Equal(t, []string{"A", "B"}, splitNames("A\x00B"))
	assert.Equal(t, []string{"Solo"}, splitNames("Solo"))
	assert.Nil(t, splitNames("  "))
}

func TestParseM3U(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tracks.flac", "")
	path := writeFile(t, dir, "list.m3u", strings.Join([]string{
		"#EXTM3U",
		"#EXTINF:123,Some Track",
		"tracks.flac",
		"",
		"https://example.test/stream",
	}, "\n"))

	uris, err := ParsePlaylistFile(path)
	require.NoError(t, err)
	require.Len(t, uris, 2)
	assert.Equal(t, FileURI(filepath.Join(dir, "tracks.flac")), uris[0], "relative entries resolve against the playlist")
	assert.Equal(t, "https://example.test/stream", uris[1], "remote entries pass through")
}

func TestParsePLS(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "list.pls", strings.Join([]string{
		"[playlist]",
		"NumberOfEntries=2",
		"File1=https://example.test/one",
		"Title1=One",
		"File2=sub/two.mp3",
		"Length2=-1",
	}, "\n"))

	uris, err := ParsePlaylistFile(path)
	require.NoError(t, err)
	require.Len(t, uris, 2)
	assert.Equal(t, "https://example.test/one", uris[0])
	assert.Equal(t, FileURI(filepath.Join(dir, "sub", "two.mp3")), uris[1])
}

func TestParsePlaylistRejectsUnknownFormat(t *testing.T) {
	_, err := ParsePlaylistFile("/tmp/list.xspf")
	assert.Error(t, err)
}

func TestImportPlaylistCreatesRadios(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.New(filepath.Join(dir, "library.db"), bus.New(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	cfg := config.DefaultConfig()
	cfg.Paths.MusicDir = dir
	scanner := NewScanner(cfg, cat, quietLogger())

	path := writeFile(t, dir, "stations.m3u", strings.Join([]string{
		"https://example.test/jazz",
		"https://example.test/news",
		"gone/missing.mp3",
	}, "\n"))

	playlistID, err := scanner.ImportPlaylist(path)
	require.NoError(t, err)

	pl, err := cat.Playlist(playlistID)
	require.NoError(t, err)
	assert.Equal(t, "stations", pl.Name)
	assert.Empty(t, pl.TrackIDs, "missing local entries are skipped")

	radios, err := cat.Radios()
	require.NoError(t, err)
	assert.Len(t, radios, 2)
}

// wavBytes builds a minimal PCM wav: 16-bit mono at the given rate.
func wavBytes(sampleRate, frames int) []byte {
	var buf bytes.Buffer
	pcmLen := frames * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+pcmLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(pcmLen))
	buf.Write(make([]byte, pcmLen))
	return buf.Bytes()
}

func TestDurationWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	require.NoError(t, os.WriteFile(path, wavBytes(8000, 8000), 0o644))

	e := NewExtractor(quietLogger())
	ms, err := e.durationWAV(path)
	require.NoError(t, err)
	assert.InDelta(t, 1000, ms, 10, "one second of frames")
}

func TestEstimateFromSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.mp3")
	require.NoError(t, os.WriteFile(path, make([]byte, 24_000), 0o644))

	e := NewExtractor(quietLogger())
	ms, err := e.estimateFromSize(path, 192_000)
	require.NoError(t, err)
	assert.Equal(t, 1000, ms, "24 kB at 192 kbit/s is one second")

	_, err = e.estimateFromSize(path, 0)
	assert.Error(t, err)
}
