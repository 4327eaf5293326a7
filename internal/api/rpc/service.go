// Package rpc serves the gripper over gRPC. Goals are server-streaming
// calls: the client receives one "feedback" message per control tick and
// a final "result" message. Closing the call cancels the goal.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omron-sinicx/robotiq-cri/internal/action"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

const (
	messageFeedback = "feedback"
	messageResult   = "result"
)

type StatusProvider interface {
	Snapshot() gripper.Snapshot
}

type Service struct {
	gripper   StatusProvider
	actions   *action.Server
	validator *action.Validator
	logger    *zap.Logger
}

func NewService(g StatusProvider, actions *action.Server, logger *zap.Logger) (*Service, error) {
	validator, err := action.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load goal schemas: %w", err)
	}
	return &Service{
		gripper:   g,
		actions:   actions,
		validator: validator,
		logger:    logger,
	}, nil
}

// NewServer returns a gRPC server with the service registered and request
// logging installed.
func NewServer(svc *Service, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryLogger(logger)),
		grpc.ChainStreamInterceptor(streamLogger(logger)),
	)
	srv.RegisterService(&ServiceDesc, svc)
	return srv
}

func (s *Service) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct("", s.gripper.Snapshot())
}

func (s *Service) ExecuteGoal(in *structpb.Struct, stream GoalStream) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	goal, err := s.validator.DecodeFull(data)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.actions.ExecuteFull(stream.Context(), goal, func(fb action.FullFeedback) {
		s.send(stream, messageFeedback, fb)
	})
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}

	return s.sendResult(stream, result)
}

func (s *Service) ExecuteCommand(in *structpb.Struct, stream GoalStream) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	goal, err := s.validator.DecodeMinimal(data)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.actions.ExecuteMinimal(stream.Context(), goal, func(fb action.MinimalFeedback) {
		s.send(stream, messageFeedback, fb)
	})
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}

	return s.sendResult(stream, result)
}

// send delivers feedback. A failed send means the client is gone; the
// cancelled stream context preempts the goal.
func (s *Service) send(stream GoalStream, kind string, v interface{}) {
	msg, err := toStruct(kind, v)
	if err != nil {
		s.logger.Error("Failed to encode stream message", zap.Error(err))
		return
	}
	if err := stream.Send(msg); err != nil {
		s.logger.Debug("Failed to send stream message", zap.String("type", kind), zap.Error(err))
	}
}

func (s *Service) sendResult(stream GoalStream, v interface{}) error {
	msg, err := toStruct(messageResult, v)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.Send(msg)
}

// toStruct converts v through its JSON form and tags it with a type field
// when kind is set.
func toStruct(kind string, v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if kind != "" {
		m["type"] = kind
	}

	return structpb.NewStruct(m)
}
