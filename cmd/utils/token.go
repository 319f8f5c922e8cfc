package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// GenerateJWT issues an access token whose subject is the user ID.
func GenerateJWT(userID uint, expirationMinutes int) (string, error) {
    claims := &jwt.RegisteredClaims{
        Subject:   fmt.Sprint(userID),
        ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute * time.Duration(expirationMinutes))),
    }
    token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}
