package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <scan-id>",
	Short: "Stream the progress of a scan until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return watchScan(newClientFromFlags(), args[0])
	},
}

// watchScan follows the progress stream and prints one line per snapshot.
// The server closes the stream once the scan is terminal.
func watchScan(client *Client, scanID string) error {
	base, err := client.WSBase()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(base+"/ws/scans/"+scanID, nil)
	if err != nil {
		return fmt.Errorf("connect progress stream: %w", err)
	}
	defer conn.Close()

	var final progressRow
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return fmt.Errorf("progress stream: %w", err)
		}

		if flagOutput == "json" {
			fmt.Println(string(frame))
		}

		var view progressRow
		if err := json.Unmarshal(frame, &view); err != nil {
			continue
		}
		final = view
		if flagOutput != "json" {
			printProgressLine(view)
		}
	}

	if final.Status == "FAILED" {
		return fmt.Errorf("scan failed: %s", final.Error)
	}
	return nil
}
