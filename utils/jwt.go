package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim keys shared with middleware.
const (
	ClaimActorType   = "actor_type"
	ClaimCitizenUID  = "citizen_uid"
	ClaimAuthorityID = "authority_id"
	ClaimOfficer     = "officer"
	ClaimAdminID     = "admin_id"
)

// GenerateCitizenJWT generates a JWT token for a citizen
func GenerateCitizenJWT(citizenUID string, secret []byte, ttl time.Duration) (string, error) {
	return sign(jwt.MapClaims{
		ClaimActorType:  "citizen",
		ClaimCitizenUID: citizenUID,
	}, secret, ttl)
}

// GenerateAuthorityJWT generates a JWT token scoped to one authority company; citizen endpoints must reject it.
func GenerateAuthorityJWT(authorityID int64, officer string, secret []byte, ttl time.Duration) (string, error) {
	return sign(jwt.MapClaims{
		ClaimActorType:   "authority",
		ClaimAuthorityID: authorityID,
		ClaimOfficer:     officer,
	}, secret, ttl)
}

// GenerateAdminJWT generates a JWT token for a moderator
func GenerateAdminJWT(adminID string, secret []byte, ttl time.Duration) (string, error) {
	return sign(jwt.MapClaims{
		ClaimActorType: "admin",
		ClaimAdminID:   adminID,
	}, secret, ttl)
}

func sign(claims jwt.MapClaims, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
