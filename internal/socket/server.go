package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/eleven-am/dictation/internal/protocol"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Forwarder hands calls to the worker. *client.Client satisfies it, so
// socket calls queue behind mailbox requests in the same loop.
type Forwarder interface {
	Transcribe(ctx context.Context, audioPath string, timeout time.Duration) protocol.Result
	Ping(ctx context.Context) bool
}

type Server struct {
	fwd    Forwarder
	grpc   *grpc.Server
	logger *slog.Logger
}

func NewServer(fwd Forwarder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		fwd:    fwd,
		grpc:   grpc.NewServer(grpc.ForceServerCodec(jsonCodec{})),
		logger: logger.With("component", "socket"),
	}
	s.grpc.RegisterService(&serviceDesc, &service{fwd: fwd, logger: s.logger})
	return s
}

// Listen binds a unix socket at path, replacing a stale socket file left by
// a previous run.
func Listen(path string) (net.Listener, error) {
	if info, err := os.Stat(path); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("%s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		lis.Close()
		return nil, err
	}
	return lis, nil
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("socket server starting", "addr", lis.Addr().String())
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

type service struct {
	fwd    Forwarder
	logger *slog.Logger
}

func (s *service) Transcribe(ctx context.Context, req *TranscribeRequest) (*protocol.Result, error) {
	if req.AudioFile == "" {
		return nil, status.Error(codes.InvalidArgument, "audio_file is required")
	}
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	res := s.fwd.Transcribe(ctx, req.AudioFile, timeout)
	if !res.OK {
		s.logger.Debug("forwarded transcription failed", "audio_file", req.AudioFile, "error", res.Err)
	}
	return &res, nil
}

func (s *service) Ping(ctx context.Context, _ *PingRequest) (*PingResponse, error) {
	return &PingResponse{Alive: s.fwd.Ping(ctx)}, nil
}
