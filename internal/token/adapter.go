package token

import (
	authmw "khata/pkg/platform/middleware/auth"
)

// MiddlewareAdapter narrows Service to the validator interface the auth
// middleware accepts.
type MiddlewareAdapter struct {
	service *Service
}

func NewMiddlewareAdapter(service *Service) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*authmw.TokenClaims, error) {
	claims, err := a.service.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.TokenClaims{
		UserID: claims.UserID,
		Role:   claims.Role,
	}, nil
}
