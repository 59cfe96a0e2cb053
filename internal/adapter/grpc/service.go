package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "dipledger.v1.LedgerService"

// LedgerServiceServer is the server API of the ledger service.
// Every method takes and returns a google.protobuf.Struct.
type LedgerServiceServer interface {
	CreatePortfolio(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPortfolio(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPortfolios(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddTrade(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteTrade(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DraftSettlement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PreviewSettlement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Settle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSettlementHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetValuation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMarketStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListHolidays(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDueAlarms(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(LedgerServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes LedgerService for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreatePortfolio", LedgerServiceServer.CreatePortfolio),
		unary("GetPortfolio", LedgerServiceServer.GetPortfolio),
		unary("ListPortfolios", LedgerServiceServer.ListPortfolios),
		unary("AddTrade", LedgerServiceServer.AddTrade),
		unary("DeleteTrade", LedgerServiceServer.DeleteTrade),
		unary("DraftSettlement", LedgerServiceServer.DraftSettlement),
		unary("PreviewSettlement", LedgerServiceServer.PreviewSettlement),
		unary("Settle", LedgerServiceServer.Settle),
		unary("ListSettlementHistory", LedgerServiceServer.ListSettlementHistory),
		unary("GetValuation", LedgerServiceServer.GetValuation),
		unary("GetMarketStatus", LedgerServiceServer.GetMarketStatus),
		unary("ListHolidays", LedgerServiceServer.ListHolidays),
		unary("ListDueAlarms", LedgerServiceServer.ListDueAlarms),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dipledger/v1/ledger.proto",
}

// RegisterLedgerServiceServer registers srv on s
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// LedgerServiceClient calls LedgerService over a client connection
type LedgerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerServiceClient creates a client bound to cc
func NewLedgerServiceClient(cc grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

// Call invokes method with req and returns the decoded response
func (c *LedgerServiceClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
