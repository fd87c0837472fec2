package jwttoken

import (
	"encoding/json"
	"net/http"
	"time"

	id "carbonledger/pkg/domain"
)

type tokenRequest struct {
	Identity string `json:"identity"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenHandler mints an access token for a self-asserted identity. This is a
// development convenience; production deployments front the registry with a
// real identity provider and leave this route unmounted.
func TokenHandler(service *JWTService, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		identity, err := id.ParseIdentity(req.Identity)
		if err != nil {
			http.Error(w, "invalid identity", http.StatusBadRequest)
			return
		}
		token, err := service.GenerateAccessToken(identity, ttl)
		if err != nil {
			http.Error(w, "token generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int64(ttl.Seconds()),
		})
	}
}
