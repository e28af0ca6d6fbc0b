package inventoryv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/resilient-orders/internal/rpc/codec"
)

const (
	Inventory_Reserve_FullMethodName = "/inventory.v1.Inventory/Reserve"
	Inventory_Release_FullMethodName = "/inventory.v1.Inventory/Release"
	Inventory_Check_FullMethodName   = "/inventory.v1.Inventory/Check"
)

type InventoryClient interface {
	Reserve(ctx context.Context, in *ReserveRequest, opts ...grpc.CallOption) (*ReserveResponse, error)
	Release(ctx context.Context, in *ReleaseRequest, opts ...grpc.CallOption) (*ReleaseResponse, error)
	Check(ctx context.Context, in *CheckRequest, opts ...grpc.CallOption) (*CheckResponse, error)
}

type inventoryClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryClient(cc grpc.ClientConnInterface) InventoryClient {
	return &inventoryClient{cc}
}

func (c *inventoryClient) Reserve(ctx context.Context, in *ReserveRequest, opts ...grpc.CallOption) (*ReserveResponse, error) {
	out := new(ReserveResponse)
	if err := c.cc.Invoke(ctx, Inventory_Reserve_FullMethodName, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryClient) Release(ctx context.Context, in *ReleaseRequest, opts ...grpc.CallOption) (*ReleaseResponse, error) {
	out := new(ReleaseResponse)
	if err := c.cc.Invoke(ctx, Inventory_Release_FullMethodName, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryClient) Check(ctx context.Context, in *CheckRequest, opts ...grpc.CallOption) (*CheckResponse, error) {
	out := new(CheckResponse)
	if err := c.cc.Invoke(ctx, Inventory_Check_FullMethodName, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withJSON(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codec.Name)}, opts...)
}

type InventoryServer interface {
	Reserve(context.Context, *ReserveRequest) (*ReserveResponse, error)
	Release(context.Context, *ReleaseRequest) (*ReleaseResponse, error)
	Check(context.Context, *CheckRequest) (*CheckResponse, error)
}

// UnimplementedInventoryServer can be embedded to satisfy InventoryServer.
type UnimplementedInventoryServer struct{}

func (UnimplementedInventoryServer) Reserve(context.Context, *ReserveRequest) (*ReserveResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Reserve not implemented")
}

func (UnimplementedInventoryServer) Release(context.Context, *ReleaseRequest) (*ReleaseResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Release not implemented")
}

func (UnimplementedInventoryServer) Check(context.Context, *CheckRequest) (*CheckResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Check not implemented")
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&Inventory_ServiceDesc, srv)
}

func _Inventory_Reserve_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReserveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).Reserve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Inventory_Reserve_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).Reserve(ctx, req.(*ReserveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Inventory_Release_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReleaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).Release(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Inventory_Release_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).Release(ctx, req.(*ReleaseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Inventory_Check_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Inventory_Check_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).Check(ctx, req.(*CheckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var Inventory_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "inventory.v1.Inventory",
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reserve", Handler: _Inventory_Reserve_Handler},
		{MethodName: "Release", Handler: _Inventory_Release_Handler},
		{MethodName: "Check", Handler: _Inventory_Check_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory/v1/inventory.go",
}
