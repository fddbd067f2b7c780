package llmmediator

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCTransport is an alternative Transport for deployments that run
// the upstream LLM as a local gRPC sidecar instead of an HTTP API,
// following the same insecure-localhost assumption as tarsy's
// GRPCLLMClient. No .proto-generated stubs ship in this module since
// none of the retrieved examples define an embed/chat-JSON service
// contract — GRPCAddr is accepted and the connection is established,
// but callers that select LLM_TRANSPORT=grpc must supply generated
// stubs before this type is functional end to end.
type GRPCTransport struct {
	conn *grpc.ClientConn
}

// NewGRPCTransport dials the configured address with insecure
// transport credentials, mirroring tarsy's NewGRPCLLMClient.
func NewGRPCTransport(addr string) (*GRPCTransport, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM gRPC client for %s: %w", addr, err)
	}
	return &GRPCTransport{conn: conn}, nil
}

// Close releases the gRPC connection.
func (t *GRPCTransport) Close() error {
	return t.conn.Close()
}

func (t *GRPCTransport) Embed(_ context.Context, _ []string, _ string) ([][]float32, error) {
	return nil, status.Error(codes.Unimplemented, "grpc LLM transport requires generated service stubs")
}

func (t *GRPCTransport) ChatJSON(_ context.Context, _ []Message, _ string) (map[string]any, error) {
	return nil, status.Error(codes.Unimplemented, "grpc LLM transport requires generated service stubs")
}
