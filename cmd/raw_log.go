// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tasmolink/pkg/capture"
	"github.com/Thermoquad/tasmolink/pkg/tasmota"
)

var (
	rawLogDirection string
	rawLogCapture   string
	rawLogHex       bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display TasmotaClient frames as they arrive.

The sniffer is passive: it never writes to the link. Attach it to the module's
TX line with --direction module (the default) or to the host's TX line with
--direction host. Bytes outside any frame are counted as noise.

With --capture every chunk read is also written to a capture file that the
replay command can decode later.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogDirection, "direction", "module", "Which side's output is sniffed (module or host)")
	rawLogCmd.Flags().StringVar(&rawLogCapture, "capture", "", "Record raw traffic to a capture file")
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also print raw frame bytes")
}

func parseDirection(s string) (tasmota.Direction, error) {
	switch s {
	case "module":
		return tasmota.FromModule, nil
	case "host":
		return tasmota.FromHost, nil
	}
	return 0, fmt.Errorf("invalid direction %q (use module or host)", s)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	dir, err := parseDirection(rawLogDirection)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetReadTimeout(-1); err != nil {
		return err
	}

	var src io.Reader = conn
	if rawLogCapture != "" {
		f, err := os.Create(rawLogCapture)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		src = capture.NewRecorder(conn, capture.NewWriter(f), dir)
	}

	fmt.Printf("Tasmolink - Raw Frame Log (%s)\n", dir)
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return sniff(src, dir, os.Stdout)
}

// sniff decodes frames from r until it fails and prints them to out
func sniff(r io.Reader, dir tasmota.Direction, out io.Writer) error {
	decoder := tasmota.NewDirectionalDecoder(dir)
	format := tasmota.FormatFrame
	if dir == tasmota.FromHost {
		format = tasmota.FormatRequest
	}
	buf := make([]byte, 128)

	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			var raw []byte
			if rawLogHex {
				raw = append(raw, decoder.RawBytes()...)
				raw = append(raw, buf[i])
			}
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Fprintf(out, "[ERROR] %v\n", err)
				continue
			}
			if frame != nil {
				fmt.Fprintln(out, format(frame))
				if rawLogHex {
					fmt.Fprintf(out, "  raw: %s\n", tasmota.FormatHex(raw))
				}
			}
		}
		if err != nil {
			// A read error usually means the connection is permanently closed
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Info().Uint64("noise", decoder.Noise()).Msg("connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
	}
}
