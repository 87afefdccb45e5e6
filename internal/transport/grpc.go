package transport

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/torosent/uristat/internal/tracing"
	"github.com/torosent/uristat/internal/uristat"
)

const (
	collectorService = "uristat.v1.Collector"
	// CollectorSendMethod is the full method name of the unary send call.
	CollectorSendMethod = "/" + collectorService + "/Send"
)

// GRPCSink sends each window as a google.protobuf.Struct over a unary call.
type GRPCSink struct {
	mu        sync.Mutex
	conn      *grpc.ClientConn
	md        metadata.MD
	propagate bool
	counters
}

// GRPCConfig configures a GRPCSink.
type GRPCConfig struct {
	Target    string
	Insecure  bool
	Metadata  map[string]string
	Propagate bool
	// DialOptions are appended after the transport credentials.
	DialOptions []grpc.DialOption
}

// NewGRPCSink creates a sink for cfg.Target. The connection is established
// lazily by the first call.
func NewGRPCSink(cfg GRPCConfig) (*GRPCSink, error) {
	var creds credentials.TransportCredentials
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	} else {
		creds = credentials.NewClientTLSFromCert(nil, "")
	}
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client for %s: %w", cfg.Target, err)
	}
	return &GRPCSink{
		conn:      conn,
		md:        metadata.New(cfg.Metadata),
		propagate: cfg.Propagate,
	}, nil
}

func (s *GRPCSink) Send(ctx context.Context, snap uristat.Snapshot) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	req, n, err := EncodeStruct(snap)
	if err != nil {
		return err
	}

	md := s.md.Copy()
	if s.propagate {
		tracing.InjectGRPCMetadata(ctx, md)
	}
	if len(md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	err = conn.Invoke(ctx, CollectorSendMethod, req, &emptypb.Empty{})
	if err != nil {
		err = fmt.Errorf("send window %s: %w", snap.ID, err)
	}
	return s.record(n, err)
}

// Stats returns the sink's traffic counters.
func (s *GRPCSink) Stats() Stats { return s.counters.snapshot() }

func (s *GRPCSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// windowField carries the JSON document inside the gRPC Struct. Struct numbers
// are float64, so counters above 2^53 (and saturated totals) would lose
// precision if the window were spread over Struct fields.
const windowField = "window"

// EncodeStruct converts a window into the Struct sent over gRPC and reports
// the size of its JSON form. The id and bucket version are copied next to the
// document so interceptors can route without decoding it.
func EncodeStruct(snap uristat.Snapshot) (*structpb.Struct, int, error) {
	data, err := Encode(snap)
	if err != nil {
		return nil, 0, err
	}
	st := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":             structpb.NewStringValue(snap.ID),
		"bucket_version": structpb.NewNumberValue(float64(snap.BucketVersion)),
		windowField:      structpb.NewStringValue(string(data)),
	}}
	return st, len(data), nil
}

// DecodeStruct is the inverse of EncodeStruct. A Struct without the window
// document is read as the window's fields directly.
func DecodeStruct(st *structpb.Struct) (uristat.Snapshot, error) {
	if v, ok := st.GetFields()[windowField]; ok {
		doc, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return uristat.Snapshot{}, fmt.Errorf("decode window: %q is not a string", windowField)
		}
		return Decode([]byte(doc.StringValue))
	}
	data, err := protojson.Marshal(st)
	if err != nil {
		return uristat.Snapshot{}, fmt.Errorf("decode window: %w", err)
	}
	return Decode(data)
}

// Receiver handles windows arriving at a collector.
type Receiver interface {
	Receive(ctx context.Context, snap uristat.Snapshot) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(ctx context.Context, snap uristat.Snapshot) error

func (f ReceiverFunc) Receive(ctx context.Context, snap uristat.Snapshot) error { return f(ctx, snap) }

// RegisterCollectorServer exposes recv as the uristat.v1.Collector service.
func RegisterCollectorServer(s grpc.ServiceRegistrar, recv Receiver) {
	s.RegisterService(&collectorServiceDesc, recv)
}

var collectorServiceDesc = grpc.ServiceDesc{
	ServiceName: collectorService,
	HandlerType: (*Receiver)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Send",
		Handler:    collectorSendHandler,
	}},
	Streams:  []grpc.StreamDesc{},
	Metadata: "uristat/v1/collector.proto",
}

func collectorSendHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req interface{}) (interface{}, error) {
		snap, err := DecodeStruct(req.(*structpb.Struct))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if err := srv.(Receiver).Receive(ctx, snap); err != nil {
			return nil, err
		}
		return &emptypb.Empty{}, nil
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CollectorSendMethod}
	return interceptor(ctx, in, info, handle)
}
