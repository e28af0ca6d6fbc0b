package paymentv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/resilient-orders/internal/rpc/codec"
)

const (
	Payment_Charge_FullMethodName = "/payment.v1.Payment/Charge"
	Payment_Refund_FullMethodName = "/payment.v1.Payment/Refund"
)

type PaymentClient interface {
	Charge(ctx context.Context, in *ChargeRequest, opts ...grpc.CallOption) (*ChargeResponse, error)
	Refund(ctx context.Context, in *RefundRequest, opts ...grpc.CallOption) (*RefundResponse, error)
}

type paymentClient struct {
	cc grpc.ClientConnInterface
}

func NewPaymentClient(cc grpc.ClientConnInterface) PaymentClient {
	return &paymentClient{cc}
}

func (c *paymentClient) Charge(ctx context.Context, in *ChargeRequest, opts ...grpc.CallOption) (*ChargeResponse, error) {
	out := new(ChargeResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codec.Name)}, opts...)
	if err := c.cc.Invoke(ctx, Payment_Charge_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *paymentClient) Refund(ctx context.Context, in *RefundRequest, opts ...grpc.CallOption) (*RefundResponse, error) {
	out := new(RefundResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codec.Name)}, opts...)
	if err := c.cc.Invoke(ctx, Payment_Refund_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type PaymentServer interface {
	Charge(context.Context, *ChargeRequest) (*ChargeResponse, error)
	Refund(context.Context, *RefundRequest) (*RefundResponse, error)
}

// UnimplementedPaymentServer can be embedded to satisfy PaymentServer.
type UnimplementedPaymentServer struct{}

func (UnimplementedPaymentServer) Charge(context.Context, *ChargeRequest) (*ChargeResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Charge not implemented")
}

func (UnimplementedPaymentServer) Refund(context.Context, *RefundRequest) (*RefundResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Refund not implemented")
}

func RegisterPaymentServer(s grpc.ServiceRegistrar, srv PaymentServer) {
	s.RegisterService(&Payment_ServiceDesc, srv)
}

func _Payment_Charge_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ChargeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServer).Charge(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Payment_Charge_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentServer).Charge(ctx, req.(*ChargeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Payment_Refund_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RefundRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServer).Refund(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Payment_Refund_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentServer).Refund(ctx, req.(*RefundRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var Payment_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "payment.v1.Payment",
	HandlerType: (*PaymentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Charge", Handler: _Payment_Charge_Handler},
		{MethodName: "Refund", Handler: _Payment_Refund_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payment/v1/payment.go",
}
