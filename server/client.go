package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote image service.
type Client struct {
	createSession        *connect.Client[CreateSessionRequest, CreateSessionResponse]
	generateProgramImage *connect.Client[ProgramImageRequest, ImageResponse]
	generateDataImage    *connect.Client[DataImageRequest, ImageResponse]
	generateDecompressor *connect.Client[DecompressorRequest, DecompressorResponse]
	listCompressors      *connect.Client[ListCompressorsRequest, ListCompressorsResponse]
	closeSession         *connect.Client[CloseSessionRequest, CloseSessionResponse]
}

// NewClient creates a client for the service at baseURL. Requests use CBOR
// unless opts select another codec, e.g. connect.WithCodec(JSONCodec{}).
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(CBORCodec{})}, opts...)
	return &Client{
		createSession: connect.NewClient[CreateSessionRequest, CreateSessionResponse](
			httpClient, baseURL+CreateSessionProcedure, opts...),
		generateProgramImage: connect.NewClient[ProgramImageRequest, ImageResponse](
			httpClient, baseURL+GenerateProgramImageProcedure, opts...),
		generateDataImage: connect.NewClient[DataImageRequest, ImageResponse](
			httpClient, baseURL+GenerateDataImageProcedure, opts...),
		generateDecompressor: connect.NewClient[DecompressorRequest, DecompressorResponse](
			httpClient, baseURL+GenerateDecompressorProcedure, opts...),
		listCompressors: connect.NewClient[ListCompressorsRequest, ListCompressorsResponse](
			httpClient, baseURL+ListCompressorsProcedure, opts...),
		closeSession: connect.NewClient[CloseSessionRequest, CloseSessionResponse](
			httpClient, baseURL+CloseSessionProcedure, opts...),
	}
}

func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	resp, err := c.createSession.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GenerateProgramImage(ctx context.Context, req *ProgramImageRequest) (*ImageResponse, error) {
	resp, err := c.generateProgramImage.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GenerateDataImage(ctx context.Context, req *DataImageRequest) (*ImageResponse, error) {
	resp, err := c.generateDataImage.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GenerateDecompressor(ctx context.Context, req *DecompressorRequest) (*DecompressorResponse, error) {
	resp, err := c.generateDecompressor.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ListCompressors(ctx context.Context) (*ListCompressorsResponse, error) {
	resp, err := c.listCompressors.CallUnary(ctx, connect.NewRequest(&ListCompressorsRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) CloseSession(ctx context.Context, req *CloseSessionRequest) (*CloseSessionResponse, error) {
	resp, err := c.closeSession.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
