package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/ui"
	"github.com/spf13/cobra"
)

const apiTimeout = 10 * time.Second

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room on the relay and print its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			RoomID domain.RoomID `json:"room_id"`
		}
		if err := callAPI(cmd.Context(), http.MethodPost, "create", &out); err != nil {
			return err
		}
		link, err := cfg.RoomURL(out.RoomID)
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Out, ui.RoomBox(out.RoomID, link))
		ui.PrintInfof("share it, then run: peercall join %s", out.RoomID)
		return nil
	},
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms open on the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Rooms []core.RoomInfo `json:"rooms"`
		}
		if err := callAPI(cmd.Context(), http.MethodGet, "rooms", &out); err != nil {
			return err
		}
		if len(out.Rooms) == 0 {
			ui.PrintInfo("no rooms")
			return nil
		}
		for _, r := range out.Rooms {
			fmt.Fprintf(ui.Out, "%s  %s\n", ui.TitleStyle.Render(string(r.ID)), ui.MutedStyle.Render(fmt.Sprintf("%d member(s)", r.MemberCount)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd, roomsCmd)
}

func callAPI(ctx context.Context, method, path string, out any) error {
	u, err := cfg.APIURL(path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return core.NewError(core.ErrConnection, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.NewError(core.ErrConnection, path, fmt.Errorf("relay answered %s", resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
