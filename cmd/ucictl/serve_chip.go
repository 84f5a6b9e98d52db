package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/uwb.hal/internal/config"
	"github.com/banshee-data/uwb.hal/internal/hal"
	"github.com/banshee-data/uwb.hal/internal/hal/grpcchip"
	"github.com/banshee-data/uwb.hal/internal/hal/simchip"
	"github.com/banshee-data/uwb.hal/internal/hal/uart"
)

var (
	cmdServeChip = &cobra.Command{
		Use:   "serve-chip",
		Short: "Export a chip over gRPC for a remote ucid",
		Long: `Serves one chip on the uwb.hal.Chip gRPC service. A ucid configured with
the grpc transport and this address as grpc_target drives the chip as if it
were local. Only one client may hold the chip open at a time.`,
		Args: cobra.NoArgs,
		RunE: runServeChip,
	}
)

var (
	serveListen    string
	serveTransport string
	servePort      string
	serveBaud      int
	serveInterval  time.Duration
)

func init() {
	rootCmd.AddCommand(cmdServeChip)
	cmdServeChip.Flags().StringVarP(&serveListen, "listen", "l", "localhost:50051", "gRPC listen address")
	cmdServeChip.Flags().StringVarP(&serveTransport, "transport", "t", config.TransportSim, "Chip to export: sim or uart")
	cmdServeChip.Flags().StringVarP(&servePort, "port", "p", "/dev/ttyUSB0", "Serial port for the uart chip")
	cmdServeChip.Flags().IntVarP(&serveBaud, "baud", "b", uart.DefaultBaudRate, "Baud rate for the uart chip")
	cmdServeChip.Flags().DurationVar(&serveInterval, "ranging-interval", simchip.DefaultRangingInterval, "Range data period of the sim chip")
}

func runServeChip(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chip, err := exportedChip(ctx)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", serveListen)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "serving %s chip on %s\n", serveTransport, lis.Addr())
	return grpcchip.Serve(ctx, lis, chip)
}

func exportedChip(ctx context.Context) (hal.Chip, error) {
	switch serveTransport {
	case config.TransportSim:
		sim := simchip.New()
		sim.RangingInterval = serveInterval
		return sim, nil
	case config.TransportUART:
		opts, err := uart.PortOptions{BaudRate: serveBaud}.Normalise()
		if err != nil {
			return nil, err
		}
		return uart.Service{Path: servePort, Options: opts}.Acquire(ctx)
	}
	return nil, fmt.Errorf("cannot export a %q chip", serveTransport)
}
