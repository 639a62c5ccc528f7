// Package grpcserver implements the AutoApply gRPC server.
//
// It delegates all business logic to autoapply.Service and handles
// only the gRPC transport concerns: error mapping and conversion between
// the domain model and Struct messages.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/autoapply-service/internal/apply"
	"jobmate/autoapply-service/internal/autoapply"
	"jobmate/autoapply-service/internal/pacing"
)

// Server implements AutoApplyServer.
type Server struct {
	svc      *autoapply.Service
	defaults pacing.PaceConfig
	topN     int
}

// NewServer constructs a gRPC Server backed by the given autoapply.Service.
func NewServer(svc *autoapply.Service, defaults pacing.PaceConfig, topN int) *Server {
	return &Server{svc: svc, defaults: defaults, topN: topN}
}

// ─── RPC implementations ─────────────────────────────────────────────────────

// ExtractKeywords returns the ranked keywords of {text, topN}.
func (s *Server) ExtractKeywords(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := struct {
		Text string `json:"text"`
		TopN int    `json:"topN"`
	}{TopN: s.topN}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return encode(map[string]any{"keywords": s.svc.Keywords(req.Text, req.TopN)})
}

// Plan builds today's schedule. An insufficient window is not an error: the
// response carries the unplaced matches and a warning.
func (s *Server) Plan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := autoapply.NewPlanRequest(s.defaults)
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	res, err := s.svc.Plan(ctx, req)
	if res == nil {
		return nil, toGRPCError(err)
	}
	return encode(res)
}

// Send claims {ids} for sending.
func (s *Server) Send(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if len(req.IDs) == 0 {
		return nil, status.Error(codes.InvalidArgument, "ids must not be empty")
	}

	results := s.svc.Send(ctx, req.IDs)
	out := make([]map[string]string, 0, len(results))
	for _, r := range results {
		m := map[string]string{"id": r.ID}
		if r.Err != nil {
			m["error"] = r.Err.Error()
		} else {
			m["from"], m["to"] = string(r.Transition.From), string(r.Transition.To)
		}
		out = append(out, m)
	}
	return encode(map[string]any{"results": out})
}

// Complete records {id, outcome, reason}.
func (s *Server) Complete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		ID      string `json:"id"`
		Outcome string `json:"outcome"`
		Reason  string `json:"reason"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	outcome, err := apply.ParseState(strings.ToUpper(req.Outcome))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	en, err := s.svc.Complete(ctx, req.ID, outcome, req.Reason)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(en)
}

// ListRecords returns every record, optionally filtered by {state}.
func (s *Server) ListRecords(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		State string `json:"state"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	var state apply.State
	if req.State != "" {
		var err error
		if state, err = apply.ParseState(strings.ToUpper(req.State)); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return encode(map[string]any{"records": s.svc.Records(state)})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// decode converts a Struct into v through its JSON form.
func decode(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(b, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// encode converts v, which must marshal to a JSON object, into a Struct.
func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	switch {
	case errors.Is(err, apply.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, apply.ErrAlreadyInFlight),
		errors.Is(err, apply.ErrAlreadyTerminal),
		errors.Is(err, apply.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, pacing.ErrInvalidConfig),
		errors.Is(err, autoapply.ErrNoActiveResume):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	log.Printf("[grpc] internal error: %v", err)
	return status.Error(codes.Internal, "internal server error")
}
