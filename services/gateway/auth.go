// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Identity headers set by the platform's session layer, which terminates
// authentication upstream of this service. The gateway trusts them the way
// any service behind the ingress does.
const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"
)

// identityContextKey is the gin context key the resolved identity is stored
// under.
const identityContextKey = "gateway.identity"

// Identity is the authenticated caller.
type Identity struct {
	// UserID is the platform user id. Never empty once resolved.
	UserID string

	// Role is the user's role ("student", "premium", "teacher", "admin").
	// May be empty; the quota layer falls back to the default role.
	Role string
}

// RequireIdentity is gin middleware that resolves the authenticated user.
//
// Description:
//
//	Requests without a user id are rejected with 401 before any quota or
//	classification work happens. A missing role is tolerated — the role
//	only matters on the user's first request of the month, and the quota
//	layer substitutes the default role.
//
// Thread Safety: The returned middleware is safe for concurrent use.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: "authentication required",
				Code:  "UNAUTHORIZED",
			})
			return
		}
		c.Set(identityContextKey, Identity{
			UserID: userID,
			Role:   c.GetHeader(headerRole),
		})
		c.Next()
	}
}

// identityFrom returns the identity stored by RequireIdentity.
func identityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
