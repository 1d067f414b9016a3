package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dkeye/peercall/internal/adapters/channel"
	"github.com/dkeye/peercall/internal/adapters/rtc"
	"github.com/dkeye/peercall/internal/app/session"
	"github.com/dkeye/peercall/internal/app/sink"
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/ui"
	"github.com/spf13/cobra"
)

const hangUpTimeout = 5 * time.Second

var (
	withAudio bool
	withVideo bool
	recordDir string
)

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and negotiate a call with the other participant",
	Long: `Join a room and stay in the call until interrupted.

While in the call, type a command and press enter:
  m  toggle microphone
  v  toggle camera
  s  show call status
  q  hang up`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("record-dir") {
			cfg.RecordDir = recordDir
		}
		return runJoin(cmd.Context(), domain.RoomID(args[0]))
	},
}

func init() {
	joinCmd.Flags().BoolVar(&withAudio, "audio", true, "send an audio track")
	joinCmd.Flags().BoolVar(&withVideo, "video", false, "send a video track")
	joinCmd.Flags().StringVar(&recordDir, "record-dir", "", "record received media into this directory")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(parent context.Context, room domain.RoomID) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := rtc.NewAPI()
	if err != nil {
		return err
	}

	var remote *sink.Sink
	mgr := session.New(session.Options{
		Media: rtc.Source{Audio: withAudio, Video: withVideo},
		Dial:  dialer(),
		Peers: rtc.NewFactory(api, rtc.Configuration(cfg.ICEServers)),
		NewSink: func(room domain.RoomID) core.TrackSink {
			remote = sink.New(sink.Options{Room: room, RecordDir: cfg.RecordDir})
			return remote
		},
	})

	ui.PrintInfof("joining room %s", room)
	done := make(chan error, 1)
	go func() { done <- mgr.Join(ctx, room) }()
	go controls(ctx, mgr)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	last := domain.StateIdle
	for {
		select {
		case err := <-done:
			printStats(remote)
			if err != nil {
				return err
			}
			ui.PrintSuccess("call ended")
			return nil
		case <-ticker.C:
			if s := mgr.State(); s != last {
				last = s
				fmt.Fprintf(ui.Out, "%s %s\n", ui.StateBadge(s), ui.MutedStyle.Render(mgr.Role().String()))
			}
		}
	}
}

func dialer() session.Dialer {
	return func(ctx context.Context, room domain.RoomID) (session.Channel, error) {
		u, err := cfg.RoomURL(room)
		if err != nil {
			return nil, err
		}
		c, err := channel.Dial(ctx, channel.Options{
			URL:              u,
			ReadLimit:        cfg.ReadLimit,
			PingPeriod:       cfg.PingPeriod,
			HandshakeTimeout: cfg.HandshakeTimeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// controls reads one-letter commands from stdin until ctx ends.
func controls(ctx context.Context, mgr *session.Manager) {
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch line {
			case "m":
				fmt.Fprintf(ui.Out, "microphone %s\n", ui.OnOff(mgr.ToggleAudio()))
			case "v":
				fmt.Fprintf(ui.Out, "camera %s\n", ui.OnOff(mgr.ToggleVideo()))
			case "s":
				fmt.Fprintf(ui.Out, "%s %s\n", ui.StateBadge(mgr.State()), ui.MutedStyle.Render(mgr.Role().String()))
				for _, f := range mgr.Faults() {
					ui.PrintWarning(f.Error())
				}
			case "q":
				hctx, cancel := context.WithTimeout(context.Background(), hangUpTimeout)
				if err := mgr.HangUp(hctx); err != nil {
					ui.PrintError(err.Error())
				}
				cancel()
				return
			case "":
			default:
				ui.PrintWarning("unknown command " + line)
			}
		}
	}
}

func printStats(s *sink.Sink) {
	if s == nil {
		return
	}
	for _, st := range s.Stats() {
		line := fmt.Sprintf("%s %s: %d packets, %d bytes", st.Kind, st.MimeType, st.Packets, st.Bytes)
		if st.File != "" {
			line += " -> " + st.File
		}
		ui.PrintInfo(line)
	}
}
