package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/uwb.hal/internal/uci"
)

var (
	cmdDecode = &cobra.Command{
		Use:   "decode <hex fragment>...",
		Short: "Decode UCI fragments given as hex",
		Long: `Each argument is one wire fragment, header included. Spaces and colons
are ignored. Fragments are reassembled in order and every completed packet
is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDecode,
	}
)

var decodeMaxPacket int

func init() {
	rootCmd.AddCommand(cmdDecode)
	cmdDecode.Flags().IntVarP(&decodeMaxPacket, "max-packet", "m", uci.DefaultMaxPacketSize, "Largest reassembled payload")
}

func runDecode(cmd *cobra.Command, args []string) error {
	r := uci.NewReassembler()
	r.MaxPacketSize = decodeMaxPacket
	out := cmd.OutOrStdout()
	for i, arg := range args {
		frag, err := parseHex(arg)
		if err != nil {
			return fmt.Errorf("fragment %d: %w", i+1, err)
		}
		p, err := r.Feed(frag)
		if err != nil {
			return fmt.Errorf("fragment %d: %w", i+1, err)
		}
		if p != nil {
			printPacket(out, *p)
		}
	}
	if pending, n := r.Pending(); pending {
		return fmt.Errorf("incomplete packet: %d payload bytes waiting for a final fragment", n)
	}
	return nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(s)
	return hex.DecodeString(s)
}

// printPacket writes one line per packet. Commands and packets without a
// known layout are shown raw.
func printPacket(w io.Writer, p uci.Packet) {
	if p.Type == uci.MessageTypeCommand {
		fmt.Fprintf(w, "%s %s % x\n", p.Type, p.Opcode(), p.Payload)
		return
	}
	msg, err := uci.Decode(p)
	switch {
	case errors.Is(err, uci.ErrUnsupportedMessage):
		fmt.Fprintf(w, "%s %s (unsupported) % x\n", p.Type, p.Opcode(), p.Payload)
	case err != nil:
		fmt.Fprintf(w, "%s %s: %v\n", p.Type, p.Opcode(), err)
	default:
		fmt.Fprintf(w, "%s %s %T %+v\n", p.Type, p.Opcode(), msg, msg)
	}
}
