// Package socket exposes the worker over a local gRPC socket. Messages are
// JSON encoded and carry the same shapes as the mailbox protocol.
package socket

import (
	"context"
	"encoding/json"

	"github.com/eleven-am/dictation/internal/protocol"
	"google.golang.org/grpc"
)

const (
	serviceName      = "dictation.v1.Dictation"
	transcribeMethod = "/" + serviceName + "/Transcribe"
	pingMethod       = "/" + serviceName + "/Ping"
	codecName        = "json"
)

type TranscribeRequest struct {
	AudioFile string `json:"audio_file"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

type PingRequest struct{}

type PingResponse struct {
	Alive bool `json:"alive"`
}

type DictationServer interface {
	Transcribe(ctx context.Context, req *TranscribeRequest) (*protocol.Result, error)
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DictationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transcribe", Handler: transcribeHandler},
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func transcribeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TranscribeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DictationServer).Transcribe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: transcribeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DictationServer).Transcribe(ctx, req.(*TranscribeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DictationServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: pingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DictationServer).Ping(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, in, info, handler)
}
