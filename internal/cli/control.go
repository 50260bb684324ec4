package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var playPauseCmd = &cobra.Command{
	Use:   "play-pause",
	Short: "Toggle playback",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forwardOrFail("play-pause")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop playback",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forwardOrFail("stop")
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to the next track",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forwardOrFail("next")
	},
}

var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go back to the previous track",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forwardOrFail("prev")
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate <0-5>",
	Short: "Rate the current track",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid rating %q", args[0])
		}
		return forwardOrFail("rate " + args[0])
	},
}

var playCmd = &cobra.Command{
	Use:   "play <a:album-id|t:track-id>...",
	Short: "Play catalog albums and tracks by id",
	Long: `Play replaces the playback list. Entries are a:<album-id> or
t:<track-id>, separated by spaces or semicolons; a bare number is a
track id. Albums are enqueued in order and playback starts from the
first album's first track.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, _, err := parsePlayEntries(args); err != nil {
			return err
		}
		return forwardOrFail("play " + strings.Join(args, " "))
	},
}

var loveCmd = &cobra.Command{
	Use:   "love [album]",
	Short: "Love the current track, or its album",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forwardOrFail(strings.TrimSpace("love " + strings.Join(args, " ")))
	},
}

var unloveCmd = &cobra.Command{
	Use:   "unlove [album]",
	Short: "Remove the loved flag from the current track, or its album",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forwardOrFail(strings.TrimSpace("unlove " + strings.Join(args, " ")))
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rescan the music directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forwardOrFail("scan")
	},
}

var importCmd = &cobra.Command{
	Use:   "import <playlist-file>",
	Short: "Import a .pls or .m3u playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forwardOrFail("open " + args[0])
	},
}
