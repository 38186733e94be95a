package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/solatis/tradepromo/internal/core/api"
	"github.com/solatis/tradepromo/internal/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully-qualified gRPC names. Messages are google.protobuf.Struct so the
// service needs no generated code.
const (
	ServiceName    = "tradepromo.v1.PromotionService"
	EvaluateMethod = "/" + ServiceName + "/Evaluate"
	ReloadMethod   = "/" + ServiceName + "/Reload"
)

// Request fields of Evaluate.
const (
	fieldCustomer           = "customer"
	fieldStopOnFirstTrigger = "stop_on_first_trigger"
)

// PromotionServer is the server API for the promotion service.
//
// Evaluate takes {"customer": {...}, "stop_on_first_trigger": bool} and
// returns the evaluation result. Reload takes an empty struct and returns
// {"rules": n}.
type PromotionServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the promotion service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PromotionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "Reload", Handler: reloadHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tradepromo/v1/promotion.proto",
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PromotionServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PromotionServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func reloadHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PromotionServer).Reload(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReloadMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PromotionServer).Reload(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// promotionHandler adapts api.PromotionService to PromotionServer.
type promotionHandler struct {
	service            *api.PromotionService
	stopOnFirstTrigger bool
}

func (h *promotionHandler) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	customer := fields[fieldCustomer].GetStructValue()
	if customer == nil {
		return nil, status.Error(codes.InvalidArgument, "customer object required")
	}

	stop := h.stopOnFirstTrigger
	if v, ok := fields[fieldStopOnFirstTrigger]; ok {
		b, isBool := v.GetKind().(*structpb.Value_BoolValue)
		if !isBool {
			return nil, status.Error(codes.InvalidArgument, "stop_on_first_trigger must be a boolean")
		}
		stop = b.BoolValue
	}

	result, err := h.service.Evaluate(ctx, types.Subject(customer.AsMap()), stop)
	if err != nil {
		return nil, api.StatusError(err)
	}

	out, err := toStruct(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (h *promotionHandler) Reload(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	n, err := h.service.Reload(ctx)
	if err != nil {
		return nil, api.StatusError(err)
	}
	_, loadedAt := h.service.RuleCount()
	return structpb.NewStruct(map[string]any{
		"rules":     n,
		"loaded_at": loadedAt.UTC().Format(time.RFC3339Nano),
	})
}

// toStruct converts v to a Struct through its JSON form so custom
// marshalers (such as invalid slab outcomes) are honored.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return structpb.NewStruct(m)
}

// PromotionClient calls the promotion service.
type PromotionClient struct {
	cc grpc.ClientConnInterface
}

// NewPromotionClient wraps a client connection.
func NewPromotionClient(cc grpc.ClientConnInterface) *PromotionClient {
	return &PromotionClient{cc: cc}
}

// Evaluate sends customer for evaluation.
func (c *PromotionClient) Evaluate(ctx context.Context, customer map[string]any, stopOnFirstTrigger bool, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{
		fieldCustomer:           customer,
		fieldStopOnFirstTrigger: stopOnFirstTrigger,
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EvaluateMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Reload asks the server to reload its rule set.
func (c *PromotionClient) Reload(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ReloadMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
