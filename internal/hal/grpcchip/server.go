package grpcchip

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/uwb.hal/internal/dispatch"
	"github.com/banshee-data/uwb.hal/internal/hal"
)

// Ensure Server implements the service.
var _ chipServer = (*Server)(nil)

// Server exports one chip. Only one client may hold it open at a time.
type Server struct {
	chip hal.Chip

	mu   sync.Mutex
	link *link
	// lost is set when the chip dies and cleared by the next open.
	lost atomic.Bool
}

// link is one client's open stream. It is the chip's callback.
type link struct {
	frames *dispatch.Queue[[]byte]
	died   atomic.Bool
	unlink func()
}

func (l *link) OnHalEvent(kind hal.EventKind, st hal.Status) error {
	l.frames.Send([]byte{tagEvent, byte(kind), byte(st)})
	return nil
}

func (l *link) OnUciMessage(fragment []byte) error {
	l.frames.Send(append([]byte{tagFragment}, fragment...))
	return nil
}

// NewServer exports chip.
func NewServer(chip hal.Chip) *Server {
	return &Server{chip: chip}
}

// Register adds the service to r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&serviceDesc, s)
}

func (s *Server) open(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	l := &link{frames: dispatch.NewQueue[[]byte]()}

	s.mu.Lock()
	if s.link != nil {
		s.mu.Unlock()
		return status.Error(codes.FailedPrecondition, "chip already open")
	}
	unlink, err := s.chip.LinkToDeath(func() {
		l.died.Store(true)
		s.lost.Store(true)
		l.frames.Close()
	})
	if err != nil {
		s.mu.Unlock()
		return status.Errorf(codes.Unavailable, "link to death: %v", err)
	}
	l.unlink = unlink
	if err := s.chip.Open(ctx, l); err != nil {
		unlink()
		s.mu.Unlock()
		return status.Errorf(codes.FailedPrecondition, "open chip: %v", err)
	}
	s.link = l
	s.lost.Store(false)
	s.mu.Unlock()
	logf("chip opened by client")

	if err := stream.SendMsg(wrapperspb.Bytes([]byte{tagReady})); err != nil {
		s.release(context.Background(), l)
		return err
	}
	for {
		f, err := l.frames.Recv(ctx)
		switch {
		case errors.Is(err, dispatch.ErrClosed):
			if l.died.Load() {
				logf("chip died, ending stream")
				s.release(context.Background(), l)
				return status.Error(codes.Unavailable, "chip died")
			}
			return nil
		case err != nil:
			logf("client went away, closing chip")
			s.release(context.Background(), l)
			return status.FromContextError(err).Err()
		}
		if err := stream.SendMsg(wrapperspb.Bytes(f)); err != nil {
			s.release(context.Background(), l)
			return err
		}
	}
}

// release closes the chip if l still holds it. The frame queue closes after
// the chip so that its last events reach the stream.
func (s *Server) release(ctx context.Context, l *link) error {
	s.mu.Lock()
	if l == nil || s.link != l {
		s.mu.Unlock()
		return nil
	}
	s.link = nil
	s.mu.Unlock()

	l.unlink()
	err := s.chip.Close(ctx)
	l.frames.Close()
	return err
}

func (s *Server) close(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if err := s.release(ctx, l); err != nil {
		return nil, status.Errorf(codes.Internal, "close chip: %v", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) coreInit(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt32Value, error) {
	return statusReply(s.chip.CoreInit(ctx))
}

func (s *Server) sessionInit(ctx context.Context, in *wrapperspb.Int32Value) (*wrapperspb.UInt32Value, error) {
	return statusReply(s.chip.SessionInit(ctx, in.GetValue()))
}

// send answers FailedPrecondition when no client holds the chip open and
// Unavailable once the chip has died or the write itself fails.
func (s *Server) send(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.UInt32Value, error) {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	switch {
	case s.lost.Load():
		return nil, status.Error(codes.Unavailable, "chip died")
	case l == nil:
		return nil, status.Error(codes.FailedPrecondition, "chip not open")
	}
	n, err := s.chip.SendUciMessage(ctx, in.GetValue())
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return wrapperspb.UInt32(uint32(n)), nil
}

// statusReply carries a hardware status in the reply; any other failure
// becomes an RPC error.
func statusReply(err error) (*wrapperspb.UInt32Value, error) {
	var ce *hal.ChipError
	if err == nil || errors.As(err, &ce) {
		return wrapperspb.UInt32(uint32(hal.StatusOf(err))), nil
	}
	return nil, status.Error(codes.FailedPrecondition, err.Error())
}

// Serve exports chip on lis until ctx is done.
func Serve(ctx context.Context, lis net.Listener, chip hal.Chip) error {
	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	NewServer(chip).Register(srv)

	// Open streams never end on their own, so GracefulStop would wait
	// forever.
	stop := context.AfterFunc(ctx, srv.Stop)
	defer stop()

	logf("serving chip on %s", lis.Addr())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
