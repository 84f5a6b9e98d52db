package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/uwb.hal/internal/uci"
	"github.com/banshee-data/uwb.hal/internal/ucilog"
)

var (
	cmdPcap = &cobra.Command{
		Use:   "pcap <file>",
		Short: "Print the packets in a capture written by ucid",
		Args:  cobra.ExactArgs(1),
		RunE:  runPcap,
	}
)

var pcapFragments bool

func init() {
	rootCmd.AddCommand(cmdPcap)
	cmdPcap.Flags().BoolVarP(&pcapFragments, "fragments", "f", false, "Also print each fragment")
}

func runPcap(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	// Commands and inbound traffic interleave in the capture, so each
	// message type gets its own chain.
	chains := map[uci.MessageType]*uci.Reassembler{}
	packets := 0
	err = ucilog.ReadPcap(f, func(ts time.Time, frag []byte) error {
		if pcapFragments {
			fmt.Fprintf(out, "  fragment % x\n", frag)
		}
		h, err := uci.ParseHeader(frag)
		if err != nil {
			fmt.Fprintf(out, "%s bad fragment: %v\n", ts.UTC().Format(time.RFC3339Nano), err)
			return nil
		}
		r, ok := chains[h.Type]
		if !ok {
			r = uci.NewReassembler()
			chains[h.Type] = r
		}
		p, err := r.Feed(frag)
		if err != nil {
			fmt.Fprintf(out, "%s bad fragment: %v\n", ts.UTC().Format(time.RFC3339Nano), err)
			return nil
		}
		if p != nil {
			packets++
			fmt.Fprintf(out, "%s ", ts.UTC().Format(time.RFC3339Nano))
			printPacket(out, *p)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d packets\n", packets)
	return nil
}
