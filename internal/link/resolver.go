// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Resolver looks up the address the device wants to be streamed from.
type Resolver interface {
	// Resolve returns the host to dial. On failure it returns the fallback
	// host together with the error, so reconnection never blocks on it.
	Resolve(ctx context.Context) (string, error)
}

// HTTPResolver asks the device identity endpoint for its address.
type HTTPResolver struct {
	Client *http.Client
	// Origin is the host (and port) the scope was pointed at.
	Origin string
	// Path is the identity endpoint, e.g. "/api/stats".
	Path string
}

type identityResponse struct {
	IP string `json:"ip"`
}

// Resolve implements Resolver.
func (r HTTPResolver) Resolve(ctx context.Context) (string, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+r.Origin+r.Path, nil)
	if err != nil {
		return r.Origin, fmt.Errorf("identity request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return r.Origin, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return r.Origin, fmt.Errorf("identity request: HTTP %d", resp.StatusCode)
	}
	var body identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return r.Origin, fmt.Errorf("identity response: %w", err)
	}
	ip := strings.TrimSpace(body.IP)
	if ip == "" {
		return r.Origin, fmt.Errorf("identity response has no ip")
	}
	return ip, nil
}

// StaticResolver always returns Host.
type StaticResolver struct{ Host string }

// Resolve implements Resolver.
func (s StaticResolver) Resolve(context.Context) (string, error) { return s.Host, nil }
