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

package http

const (
	// Pseudo-headers, as defined in RFC 9113 section 8.3.1.
	HeaderPath      = ":path"
	HeaderMethod    = ":method"
	HeaderAuthority = ":authority"
	HeaderStatus    = ":status"

	HeaderAuthorization = "authorization"
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"
	HeaderXRequestID    = "x-request-id"

	HeaderContentTypeText = "text/plain"
)
