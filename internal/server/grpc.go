package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/blood-report-parser/internal/common"
	"github.com/joseph-ayodele/blood-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/blood-report-parser/internal/utils"
)

// Metadata keys understood by the gRPC surface.
const (
	MetadataFileName  = "x-file-name"
	MetadataClientID  = "x-client-id"
	MetadataRequestID = "x-request-id"
)

const (
	ReportServiceName         = "bloodreport.v1.ReportService"
	ReportServiceExtract      = "/" + ReportServiceName + "/Extract"
	ReportServiceListReports  = "/" + ReportServiceName + "/ListReports"
	ReportServiceClearReports = "/" + ReportServiceName + "/ClearReports"
	ReportServiceExportReport = "/" + ReportServiceName + "/ExportReport"
)

// ReportServiceServer is the gRPC contract. Messages are protobuf well-known
// types so the service needs no generated code.
type ReportServiceServer interface {
	// Extract takes the image bytes; the file name travels as x-file-name metadata.
	Extract(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	ListReports(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ClearReports(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// ExportReport takes {"id": "...", "format": "csv|pdf|xlsx"}.
	ExportReport(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
}

var ReportServiceDesc = grpc.ServiceDesc{
	ServiceName: ReportServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Extract", ReportServiceExtract, ReportServiceServer.Extract),
		unaryMethod("ListReports", ReportServiceListReports, ReportServiceServer.ListReports),
		unaryMethod("ClearReports", ReportServiceClearReports, ReportServiceServer.ClearReports),
		unaryMethod("ExportReport", ReportServiceExportReport, ReportServiceServer.ExportReport),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bloodreport/v1/report.proto",
}

func unaryMethod[Req any, Resp any](name, fullMethod string, call func(ReportServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReportServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReportServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func RegisterReportServiceServer(s grpc.ServiceRegistrar, srv ReportServiceServer) {
	s.RegisterService(&ReportServiceDesc, srv)
}

// ReportServiceClient calls ReportService over a client connection.
type ReportServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewReportServiceClient(cc grpc.ClientConnInterface) *ReportServiceClient {
	return &ReportServiceClient{cc: cc}
}

func (c *ReportServiceClient) Extract(ctx context.Context, fileName string, image []byte, opts ...grpc.CallOption) (*structpb.Struct, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, MetadataFileName, fileName)
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ReportServiceExtract, wrapperspb.Bytes(image), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReportServiceClient) ListReports(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ReportServiceListReports, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReportServiceClient) ClearReports(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, ReportServiceClearReports, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

func (c *ReportServiceClient) ExportReport(ctx context.Context, id, format string, opts ...grpc.CallOption) ([]byte, error) {
	in, err := structpb.NewStruct(map[string]any{"id": id, "format": format})
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, ReportServiceExportReport, in, out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// GRPCServer adapts ReportService to ReportServiceServer.
type GRPCServer struct {
	svc    *ReportService
	logger *slog.Logger
}

func NewGRPCServer(svc *ReportService, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCServer{svc: svc, logger: logger}
}

func (s *GRPCServer) Extract(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	name := firstMetadata(ctx, MetadataFileName)
	report, _, err := s.svc.Extract(ctx, common.ClientIDFromContext(ctx), pipeline.BytesUpload(name, in.GetValue()))
	if err != nil {
		return nil, failureStatus(err)
	}
	out, err := utils.ToPBReport(report)
	if err != nil {
		s.logger.Error("grpc.encode.failed", "report_id", report.ID, "error", err)
		return nil, common.InternalError("encode report")
	}
	return out, nil
}

func (s *GRPCServer) ListReports(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	out, err := utils.ToPBHistory(s.svc.History(ctx, common.ClientIDFromContext(ctx)))
	if err != nil {
		s.logger.Error("grpc.encode.failed", "error", err)
		return nil, common.InternalError("encode history")
	}
	return out, nil
}

func (s *GRPCServer) ClearReports(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.svc.Clear(ctx, common.ClientIDFromContext(ctx)); err != nil {
		return nil, common.StatusFromError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) ExportReport(ctx context.Context, in *structpb.Struct) (*wrapperspb.BytesValue, error) {
	f := in.GetFields()
	doc, err := s.svc.ExportReport(ctx, common.ClientIDFromContext(ctx),
		f["id"].GetStringValue(), f["format"].GetStringValue())
	if err != nil {
		return nil, common.StatusFromError(err)
	}
	return wrapperspb.Bytes(doc.Data), nil
}

// failureStatus maps pipeline failures onto codes with the user-facing message.
func failureStatus(err error) error {
	kind := pipeline.KindOf(err)
	switch kind {
	case pipeline.BadRequest:
		return common.InvalidArgumentError(kind.UserMessage())
	case pipeline.OcrFailed:
		return common.FailedPreconditionError(kind.UserMessage())
	default:
		return common.InternalError(kind.UserMessage())
	}
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// ScopeInterceptor copies client and request ids from metadata into the context
// and logs each call.
func ScopeInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		reqID := firstMetadata(ctx, MetadataRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, reqID)
		ctx = common.WithClientID(ctx, firstMetadata(ctx, MetadataClientID))

		resp, err := handler(ctx, req)
		logger.Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"request_id", reqID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// NewGRPC builds a server with ReportService and the standard health service.
func NewGRPC(svc *ReportService, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(ScopeInterceptor(logger))}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterReportServiceServer(gs, NewGRPCServer(svc, logger))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ReportServiceName, healthpb.HealthCheckResponse_SERVING)
	return gs, hs
}
