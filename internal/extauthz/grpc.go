// Copyright 2025 Tetrate
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extauthz

import (
	"context"
	"sync"
	"time"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/tetratelabs/telemetry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/istio-ecosystem/authfilter/internal"
	internalhttp "github.com/istio-ecosystem/authfilter/internal/http"
)

// defaultCheckTimeout bounds a single check call when the configuration does
// not specify one.
const defaultCheckTimeout = 200 * time.Millisecond

// GrpcService is the connection configuration for a gRPC authorization
// service.
type GrpcService struct {
	// Target is the address of the authorization service.
	Target string
	// Timeout for a single check call. Zero means defaultCheckTimeout.
	Timeout time.Duration
	// TrustedCertificateAuthorityFile is the path to the CA bundle used to
	// verify the service certificate. Empty means a plaintext connection.
	TrustedCertificateAuthorityFile string
}

// GrpcChannel is the shared connection to a gRPC authorization service. It
// is created once and hands out per-request clients.
type GrpcChannel struct {
	log     telemetry.Logger
	conn    *grpc.ClientConn
	authz   authv3.AuthorizationClient
	timeout time.Duration
}

// NewGrpcChannel connects to the configured authorization service. Extra
// dial options are appended to the computed credentials; they are meant to be
// used in tests.
func NewGrpcChannel(cfg GrpcService, opts ...grpc.DialOption) (*GrpcChannel, error) {
	creds := insecure.NewCredentials()
	if cfg.TrustedCertificateAuthorityFile != "" {
		var err error
		creds, err = credentials.NewClientTLSFromFile(cfg.TrustedCertificateAuthorityFile, "")
		if err != nil {
			return nil, err
		}
	}

	conn, err := grpc.NewClient(cfg.Target, append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)...)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCheckTimeout
	}

	return &GrpcChannel{
		log:     internal.Logger(internal.Authz),
		conn:    conn,
		authz:   authv3.NewAuthorizationClient(conn),
		timeout: timeout,
	}, nil
}

// NewClient returns a Client bound to a single request.
func (ch *GrpcChannel) NewClient() Client {
	return &grpcClient{channel: ch}
}

// Close releases the underlying connection.
func (ch *GrpcChannel) Close() error {
	return ch.conn.Close()
}

var _ Client = (*grpcClient)(nil)

// grpcClient performs a single check call against the shared channel. The
// completion callback always fires asynchronously, on the call goroutine.
type grpcClient struct {
	channel *GrpcChannel

	mu     sync.Mutex
	cancel context.CancelFunc
	done   bool
}

// Check issues the RPC on its own goroutine and completes the callbacks with
// the translated response, unless Cancel suppressed it first.
func (c *grpcClient) Check(ctx context.Context, callbacks RequestCallbacks, req *authv3.CheckRequest) {
	ctx, cancel := context.WithTimeout(ctx, c.channel.timeout)

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		resp, err := c.channel.authz.Check(ctx, req)

		c.mu.Lock()
		if c.done {
			c.mu.Unlock()
			return
		}
		c.done = true
		c.mu.Unlock()

		if err != nil {
			c.channel.log.Context(ctx).Error("check call failed", err)
			callbacks.OnComplete(&Response{Status: CheckError})
			return
		}
		callbacks.OnComplete(translateCheckResponse(resp))
	}()
}

// Cancel suppresses the pending completion and aborts the in-flight RPC.
func (c *grpcClient) Cancel() {
	c.mu.Lock()
	c.done = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// translateCheckResponse maps the wire response to the decision model. An OK
// status code allows the request, any other code denies it, carrying over the
// HTTP attributes of the corresponding response message.
func translateCheckResponse(resp *authv3.CheckResponse) *Response {
	if codes.Code(resp.GetStatus().GetCode()) == codes.OK {
		out := &Response{Status: CheckOK}
		for _, hvo := range resp.GetOkResponse().GetHeaders() {
			entry := headerEntry(hvo)
			if hvo.GetAppend().GetValue() {
				out.HeadersToAppend = append(out.HeadersToAppend, entry)
			} else {
				out.HeadersToAdd = append(out.HeadersToAdd, entry)
			}
		}
		return out
	}

	out := &Response{Status: CheckDenied}
	denied := resp.GetDeniedResponse()
	out.StatusCode = int(denied.GetStatus().GetCode())
	out.Body = denied.GetBody()
	for _, hvo := range denied.GetHeaders() {
		out.HeadersToAdd = append(out.HeadersToAdd, headerEntry(hvo))
	}
	return out
}

func headerEntry(hvo *corev3.HeaderValueOption) internalhttp.HeaderEntry {
	return internalhttp.HeaderEntry{
		Name:  hvo.GetHeader().GetKey(),
		Value: hvo.GetHeader().GetValue(),
	}
}
