package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"support_chat/internal/config"
	"support_chat/internal/domain"
	apperrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

// AuthService проверяет токены, выпущенные внешним сервисом авторизации.
// Сам сервис токены не выпускает.
type AuthService interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.Principal, error)
}

// JWTClaims - claims токена от сервиса авторизации магазина
type JWTClaims struct {
	Email string   `json:"email"`
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret []byte
	issuer    string
	adminRole string
	log       logger.Logger
}

func NewAuthService(jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		jwtSecret: []byte(jwtCfg.Secret),
		issuer:    jwtCfg.Issuer,
		adminRole: jwtCfg.AdminRole,
		log:       log,
	}
}

func (s *authService) ValidateToken(_ context.Context, tokenString string) (*domain.Principal, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		s.log.Debug("Token validation failed", "error", err)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	principal := &domain.Principal{Role: domain.RoleCustomer}
	if s.isAdmin(claims) {
		principal.Role = domain.RoleAdmin
		principal.Identity = domain.AdminIdentity
		return principal, nil
	}

	principal.Identity = domain.NormalizeIdentity(claims.Email)
	if principal.Identity == "" || principal.Identity == domain.AdminIdentity {
		return nil, fmt.Errorf("%w: token has no customer email", apperrors.ErrInvalidToken)
	}
	return principal, nil
}

func (s *authService) isAdmin(claims *JWTClaims) bool {
	if s.adminRole == "" {
		return false
	}
	if claims.Role == s.adminRole {
		return true
	}
	for _, role := range claims.Roles {
		if role == s.adminRole {
			return true
		}
	}
	return false
}

func (s *authService) parseToken(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}
