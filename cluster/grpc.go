package cluster

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/kulupu-go/kulupu/cluster/pb"
)

// wireMessage is what every message in cluster/pb implements: Marshal/
// Unmarshal against the raw protobuf wire format, without a
// proto.Message's Reset/String/ProtoReflect machinery a protoc-generated
// stub would carry.
type wireMessage interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// codecName is registered as a distinct gRPC content-subtype so this
// package's hand-rolled wire messages never collide with the standard
// "proto" codec a protoc-generated service elsewhere in the process might
// also register.
const codecName = "kulupu-cluster"

type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("cluster: %T does not implement wireMessage", v)
	}
	return m.Marshal()
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("cluster: %T does not implement wireMessage", v)
	}
	return m.Unmarshal(data)
}

func (wireCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// ServiceName is the gRPC service name workers and the coordinator dial.
const ServiceName = "kulupu.cluster.Cluster"

// serviceDesc is hand-authored in place of a protoc-generated
// _grpc.pb.go: four unary RPCs, matched against the Coordinator's own
// methods through the grpcHandler shim below.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*grpcHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterWorker", Handler: registerWorkerHandler},
		{MethodName: "Heartbeat", Handler: heartbeatHandler},
		{MethodName: "SubmitSeal", Handler: submitSealHandler},
		{MethodName: "GetJob", Handler: getJobHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cluster.proto",
}

// grpcHandler is the interface the coordinator's *Server implements to back
// serviceDesc's method table.
type grpcHandler interface {
	RegisterWorker(context.Context, *pb.WorkerInfo) (*pb.RegisterResponse, error)
	Heartbeat(context.Context, *pb.Heartbeat) (*pb.Ack, error)
	SubmitSeal(context.Context, *pb.SealRequest) (*pb.Ack, error)
	GetJob(context.Context, *pb.WorkerInfo) (*pb.JobMessage, error)
}

func registerWorkerHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(pb.WorkerInfo)
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := srv.(grpcHandler)
	if interceptor == nil {
		return handler.RegisterWorker(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RegisterWorker"}
	return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return handler.RegisterWorker(ctx, req.(*pb.WorkerInfo))
	})
}

func heartbeatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(pb.Heartbeat)
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := srv.(grpcHandler)
	if interceptor == nil {
		return handler.Heartbeat(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Heartbeat"}
	return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return handler.Heartbeat(ctx, req.(*pb.Heartbeat))
	})
}

func submitSealHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(pb.SealRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := srv.(grpcHandler)
	if interceptor == nil {
		return handler.SubmitSeal(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/SubmitSeal"}
	return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return handler.SubmitSeal(ctx, req.(*pb.SealRequest))
	})
}

func getJobHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(pb.WorkerInfo)
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := srv.(grpcHandler)
	if interceptor == nil {
		return handler.GetJob(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetJob"}
	return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return handler.GetJob(ctx, req.(*pb.WorkerInfo))
	})
}

// Server exposes a Coordinator over gRPC, backing serviceDesc.
type Server struct {
	coordinator *Coordinator
}

// NewServer wraps coordinator for gRPC registration.
func NewServer(coordinator *Coordinator) *Server {
	return &Server{coordinator: coordinator}
}

// Register attaches the cluster service to an existing *grpc.Server.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *Server) RegisterWorker(ctx context.Context, req *pb.WorkerInfo) (*pb.RegisterResponse, error) {
	if _, err := s.coordinator.RegisterWorker(req.ID, req.Name, req.Addr); err != nil {
		return &pb.RegisterResponse{Accepted: false, Message: err.Error()}, nil
	}
	return &pb.RegisterResponse{Accepted: true}, nil
}

func (s *Server) Heartbeat(ctx context.Context, req *pb.Heartbeat) (*pb.Ack, error) {
	if err := s.coordinator.Heartbeat(req.WorkerID, req.Hashrate); err != nil {
		return &pb.Ack{OK: false, Message: err.Error()}, nil
	}
	return &pb.Ack{OK: true}, nil
}

func (s *Server) SubmitSeal(ctx context.Context, req *pb.SealRequest) (*pb.Ack, error) {
	var preHash [32]byte
	copy(preHash[:], req.PreHash)

	accepted, err := s.coordinator.SubmitSeal(req.WorkerID, preHash, req.SealBytes)
	if err != nil {
		return &pb.Ack{OK: false, Message: err.Error()}, nil
	}
	if !accepted {
		return &pb.Ack{OK: false, Message: "seal rejected"}, nil
	}
	return &pb.Ack{OK: true}, nil
}

func (s *Server) GetJob(ctx context.Context, req *pb.WorkerInfo) (*pb.JobMessage, error) {
	meta, ok := s.coordinator.Metadata()
	if !ok {
		return nil, fmt.Errorf("cluster: no job available")
	}
	return metadataToWire(meta), nil
}

// Client is a thin wrapper over a *grpc.ClientConn dialed against a
// Server, invoking the hand-authored method table directly with
// grpc.Invoke rather than through a protoc-generated client stub.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection (dialed with
// grpc.WithDefaultCallOptions(grpc.CallContentSubtype(cluster.CodecName()))
// so the wire codec registered by this package is selected).
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// CodecName returns the content-subtype callers must select when dialing,
// e.g. grpc.WithDefaultCallOptions(grpc.CallContentSubtype(cluster.CodecName())).
func CodecName() string { return codecName }

func (c *Client) RegisterWorker(ctx context.Context, req *pb.WorkerInfo) (*pb.RegisterResponse, error) {
	reply := new(pb.RegisterResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/RegisterWorker", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) Heartbeat(ctx context.Context, req *pb.Heartbeat) (*pb.Ack, error) {
	reply := new(pb.Ack)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Heartbeat", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) SubmitSeal(ctx context.Context, req *pb.SealRequest) (*pb.Ack, error) {
	reply := new(pb.Ack)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/SubmitSeal", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) GetJob(ctx context.Context, req *pb.WorkerInfo) (*pb.JobMessage, error) {
	reply := new(pb.JobMessage)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/GetJob", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}
