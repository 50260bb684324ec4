package cli

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cantata/internal/config"
)

// socketPath is the single-instance rendezvous under the data directory.
func socketPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "cantata.sock")
}

// forward sends one command line to a running instance. The boolean
// reports whether an instance answered.
func forward(cfg *config.Config, line string) (bool, error) {
	conn, err := net.Dial("unix", socketPath(cfg))
	if err != nil {
		return false, nil
	}
	defer conn.Close()
	if _, err := fmt.Fprintln(conn, line); err != nil {
		return true, err
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return true, err
	}
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "error: ") {
		return true, fmt.Errorf("%s", strings.TrimPrefix(reply, "error: "))
	}
	if reply != "" && reply != "ok" {
		fmt.Println(reply)
	}
	return true, nil
}

// forwardOrFail is the control-verb path: it requires a live instance.
func forwardOrFail(line string) error {
	handled, err := forward(cfg, line)
	if err != nil {
		return err
	}
	if !handled {
		return fmt.Errorf("no running instance")
	}
	return nil
}

// serveSocket listens for forwarded commands and applies them on the
// player goroutine. A stale socket file from a crashed instance is
// replaced.
func (a *App) serveSocket() error {
	path := socketPath(a.cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := net.Dial("unix", path); err == nil {
		return fmt.Errorf("another instance is already running")
	}
	_ = os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	a.listener = listener

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go a.handleConn(conn)
		}
	}()
	return nil
}

func (a *App) handleConn(conn net.Conn) {
	defer conn.Close()
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	if err := a.dispatch(strings.TrimSpace(line)); err != nil {
		fmt.Fprintf(conn, "error: %v\n", err)
		return
	}
	fmt.Fprintln(conn, "ok")
}

// dispatch parses one forwarded command and posts it to the player.
func (a *App) dispatch(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	verb, args := fields[0], fields[1:]

	switch verb {
	case "play-pause":
		a.tasks.Post(a.player.PlayPause)
	case "stop":
		a.tasks.Post(a.player.Stop)
	case "next":
		a.tasks.Post(a.player.Next)
	case "prev":
		a.tasks.Post(a.player.Prev)
	case "rate":
		if len(args) != 1 {
			return fmt.Errorf("rate needs one value")
		}
		rate, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid rating %q", args[0])
		}
		a.tasks.Post(func() { a.player.SetRate(rate) })
	case "play":
		albumIDs, trackIDs, err := parsePlayEntries(args)
		if err != nil {
			return err
		}
		a.tasks.Post(func() { a.playEntries(albumIDs, trackIDs) })
	case "love", "unlove":
		loved := verb == "love"
		if len(args) == 1 && args[0] == "album" {
			a.tasks.Post(func() {
				cur := a.player.Current()
				if cur.IsNone() || cur.IsRadio() {
					return
				}
				if err := a.catalog.SetAlbumLoved(cur.AlbumID, loved); err != nil {
					a.logger.WithError(err).WithField("album_id", cur.AlbumID).Error("Failed to store loved flag")
				}
			})
		} else {
			a.tasks.Post(func() { a.player.SetLoved(loved) })
		}
	case "open":
		if len(args) != 1 {
			return fmt.Errorf("open needs one uri")
		}
		a.tasks.Post(func() { a.openURI(args[0]) })
	case "scan":
		go func() {
			if err := a.scanner.ScanCollection(); err != nil {
				a.logger.WithError(err).Error("Scan failed")
			}
		}()
	default:
		return fmt.Errorf("unknown command %q", verb)
	}
	return nil
}

// parsePlayEntries splits play arguments into album and track ids.
// Entries are `a:<album-id>` or `t:<track-id>`, separated by spaces or
// semicolons; a bare number counts as a track id.
func parsePlayEntries(args []string) (albumIDs, trackIDs []int, err error) {
	for _, arg := range args {
		for _, entry := range strings.Split(arg, ";") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			raw, isAlbum := entry, false
			switch {
			case strings.HasPrefix(entry, "a:"):
				raw, isAlbum = entry[2:], true
			case strings.HasPrefix(entry, "t:"):
				raw = entry[2:]
			}
			id, aerr := strconv.Atoi(raw)
			if aerr != nil {
				return nil, nil, fmt.Errorf("invalid play entry %q", entry)
			}
			if isAlbum {
				albumIDs = append(albumIDs, id)
			} else {
				trackIDs = append(trackIDs, id)
			}
		}
	}
	if len(albumIDs) == 0 && len(trackIDs) == 0 {
		return nil, nil, fmt.Errorf("play needs album or track entries")
	}
	return albumIDs, trackIDs, nil
}

// playEntries replaces playback with the given albums, queues the loose
// tracks, and starts from the first album's first track. Without albums
// the tracks play as a one-off list.
func (a *App) playEntries(albumIDs, trackIDs []int) {
	if len(albumIDs) == 0 {
		a.player.PlayTrackIDs(trackIDs, trackIDs[0])
		return
	}
	a.player.ClearAlbums()
	a.player.AddAlbumIDs(albumIDs, nil, nil)
	for _, id := range trackIDs {
		a.player.AppendToQueue(id, true)
	}
	albums := a.player.Albums()
	if len(albums) == 0 {
		return
	}
	if tracks := albums[0].Tracks(); len(tracks) > 0 {
		a.player.Load(tracks[0])
	}
}

func (a *App) closeSocket() {
	if a.listener != nil {
		a.listener.Close()
		_ = os.Remove(socketPath(a.cfg))
	}
}
