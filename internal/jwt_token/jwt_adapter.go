package jwttoken

import (
	id "carbonledger/pkg/domain"
)

// JWTServiceAdapter narrows JWTService to the auth middleware's validator
// interface.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (id.Identity, error) {
	return a.service.ExtractIdentity(tokenString)
}
