package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "ChopChop"

type VendorClaims struct {
	VendorID string `json:"vendor_id"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// GenerateVendorToken signs a dashboard token valid for ttl.
func GenerateVendorToken(secret []byte, vendorID, email string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := &VendorClaims{
		VendorID: vendorID,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   vendorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		ErrorLogger.Printf("Error generating token: %v", err)
		return "", err
	}
	return tokenString, nil
}

func ParseVendorToken(secret []byte, tokenString string) (*VendorClaims, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &VendorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*VendorClaims)
	if !ok || claims.VendorID == "" {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
