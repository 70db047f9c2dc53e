// Package services implements the ContactScope gRPC services.
package services

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/turtacn/ContactScope/internal/application/analysis"
	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// SessionServiceName is the fully-qualified service name.
const SessionServiceName = "contactscope.v1.SessionService"

// SessionReader is the part of analysis.Service the gRPC layer needs.
type SessionReader interface {
	GetSession(ctx context.Context, id common.ID) (*session.Session, error)
	SearchSessions(ctx context.Context, query string, page common.Pagination) (*analysis.ListResult, error)
}

// SessionServiceServer is the server API of SessionService.
type SessionServiceServer interface {
	GetSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	SearchSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// SessionServer implements SessionServiceServer over a SessionReader.
type SessionServer struct {
	sessions SessionReader
	logger   logging.Logger
}

// NewSessionServer creates a SessionServer.
func NewSessionServer(sessions SessionReader, logger logging.Logger) *SessionServer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SessionServer{sessions: sessions, logger: logger}
}

type sessionSummary struct {
	session.Header
	Cutoff     float64                    `json:"cutoff"`
	DurationMs int64                      `json:"duration_ms"`
	Chains     []contact.ChainMetrics     `json:"chains"`
	ChainPairs []contact.ChainPairSummary `json:"chain_pairs"`
}

// GetSession returns the header and chain-level results of one session.
func (s *SessionServer) GetSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := common.ID(req.GetValue())
	if err := id.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	out := sessionSummary{
		Header:     sess.Header(),
		Cutoff:     sess.Cutoff,
		DurationMs: sess.Duration.Milliseconds(),
	}
	if sess.Result != nil {
		out.Chains = sess.Result.Chains
		out.ChainPairs = sess.Result.ChainPairs
	}
	return toStruct(out)
}

// SearchSessions returns one page of headers matching q.
func (s *SessionServer) SearchSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	page := common.Pagination{
		Page:     int(fields["page"].GetNumberValue()),
		PageSize: int(fields["page_size"].GetNumberValue()),
	}
	res, err := s.sessions.SearchSessions(ctx, fields["q"].GetStringValue(), page)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(res)
}

// toStatus maps application error codes onto gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.IsNotFound(err):
		code = codes.NotFound
	case errors.IsValidation(err):
		code = codes.InvalidArgument
	case errors.IsUnavailable(err):
		code = codes.Unavailable
	case errors.IsCode(err, errors.CodeTimeout):
		code = codes.DeadlineExceeded
	case errors.IsCode(err, errors.ErrCodeFeatureDisabled):
		code = codes.Unimplemented
	default:
		return status.Error(codes.Internal, "internal server error")
	}
	msg := errors.DefaultMessageForCode(errors.GetCode(err))
	return status.Error(code, msg)
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// SessionServiceDesc describes SessionService for grpc.Server.RegisterService.
// It mirrors api/proto/contactscope/v1/session.proto.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSession", Handler: getSessionHandler},
		{MethodName: "SearchSessions", Handler: searchSessionsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "contactscope/v1/session.proto",
}

func getSessionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).GetSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + SessionServiceName + "/GetSession"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).GetSession(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func searchSessionsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).SearchSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + SessionServiceName + "/SearchSessions"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).SearchSessions(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
