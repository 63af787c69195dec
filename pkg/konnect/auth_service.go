package konnect

import (
	"context"
	"fmt"
	"net/http"
)

// AuthService answers questions about the authenticated caller.
type AuthService service

// OrgUserInfo returns the organization of the authenticated caller. It
// is served by the global API regardless of the configured region.
func (s *AuthService) OrgUserInfo(ctx context.Context) (*OrgUserInfo, error) {
	var info OrgUserInfo
	_, err := s.client.do(ctx, getGlobalEndpoint(s.client.baseURL),
		http.MethodGet, "/v2/organizations/me", nil, nil, &info)
	if err != nil {
		return nil, fmt.Errorf("fetching organization info: %w", err)
	}
	return &info, nil
}
