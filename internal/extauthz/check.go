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
	"net"
	"strconv"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"google.golang.org/protobuf/types/known/timestamppb"

	internalhttp "github.com/istio-ecosystem/authfilter/internal/http"
)

// BuildCheckRequest assembles the check request sent to the authorization
// service: the downstream connection addresses, the subset of request headers
// whose names are in allowed, and the merged context extensions.
func BuildCheckRequest(local, remote net.Addr, headers *internalhttp.HeaderMap,
	allowed map[string]struct{}, extensions map[string]string) *authv3.CheckRequest {

	selected := make(map[string]string, len(allowed))
	headers.Range(func(name, value string) bool {
		if _, ok := allowed[name]; !ok {
			return true
		}
		// Keep the first value only, consistent with lookup semantics.
		if _, seen := selected[name]; !seen {
			selected[name] = value
		}
		return true
	})

	path, _ := headers.Get(internalhttp.HeaderPath)
	method, _ := headers.Get(internalhttp.HeaderMethod)
	host, _ := headers.Get(internalhttp.HeaderAuthority)

	return &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Source:      &authv3.AttributeContext_Peer{Address: socketAddress(remote)},
			Destination: &authv3.AttributeContext_Peer{Address: socketAddress(local)},
			Request: &authv3.AttributeContext_Request{
				Time: timestamppb.Now(),
				Http: &authv3.AttributeContext_HttpRequest{
					Method:  method,
					Host:    host,
					Path:    path,
					Headers: selected,
					Size:    -1,
				},
			},
			ContextExtensions: extensions,
		},
	}
}

// socketAddress converts a net.Addr into the envoy core address form.
// A nil or unparseable address yields a nil protobuf address.
func socketAddress(addr net.Addr) *corev3.Address {
	if addr == nil {
		return nil
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	port, _ := strconv.ParseUint(portStr, 10, 32)
	return &corev3.Address{
		Address: &corev3.Address_SocketAddress{
			SocketAddress: &corev3.SocketAddress{
				Address:       host,
				PortSpecifier: &corev3.SocketAddress_PortValue{PortValue: uint32(port)},
			},
		},
	}
}
