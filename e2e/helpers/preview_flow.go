// Command preview_flow exercises the preview lifecycle via WS.
//
// It connects to a running umbra gateway, previews the opposite of the
// current period, and waits for the preview apply and the revert that
// follows it.
//
// Usage: preview_flow -gateway ws://127.0.0.1:PORT/api/ws -for 2s
//
// Exit codes:
//
//	0 = all checks passed
//	1 = a check failed
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	wsclient "github.com/dohr-michael/umbra/clients/ws"
	"github.com/dohr-michael/umbra/internal/config"
	"github.com/dohr-michael/umbra/internal/events"
	"github.com/dohr-michael/umbra/internal/schedule"
	"github.com/dohr-michael/umbra/internal/switcher"
)

func main() {
	gatewayURL := flag.String("gateway", "ws://127.0.0.1:18430/api/ws", "Gateway WS URL")
	previewFor := flag.Duration("for", 2*time.Second, "Preview duration")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *gatewayURL, *previewFor); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, gatewayURL string, previewFor time.Duration) error {
	client, err := wsclient.Dial(ctx, gatewayURL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer client.Close()

	// Force a known starting point so the preview is always a change.
	var st switcher.Status
	if err := client.Execute(ctx, switcher.CmdForceDay, nil, &st); err != nil {
		return fmt.Errorf("force day: %w", err)
	}
	fmt.Printf("CHECK forced day: mode=%s\n", st.Mode)

	params := switcher.Preview{Period: schedule.Night, Duration: config.Duration(previewFor)}
	if err := client.Execute(ctx, switcher.CmdPreview, params, &st); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	if !st.Previewing {
		return fmt.Errorf("status does not report a running preview")
	}
	fmt.Printf("CHECK preview started: mode=%s\n", st.Mode)

	reverted := false
	for !reverted {
		frame, err := client.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("timeout waiting for revert")
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if events.EventType(frame.Event) != events.EventModeApplied {
			continue
		}

		var evt events.Event
		if err := json.Unmarshal(frame.Payload, &evt); err != nil {
			continue
		}
		payload, ok := events.GetModeAppliedPayload(evt)
		if !ok {
			continue
		}
		fmt.Printf("CHECK mode applied: period=%s reason=%s\n", payload.Period, payload.Reason)

		if payload.Error != "" {
			return fmt.Errorf("apply failed: %s", payload.Error)
		}
		if payload.Reason == events.ReasonRevert {
			if payload.Period != string(schedule.Day) {
				return fmt.Errorf("reverted to %s, want day", payload.Period)
			}
			reverted = true
		}
	}

	fmt.Println("CHECK all flow checks passed")
	return nil
}
