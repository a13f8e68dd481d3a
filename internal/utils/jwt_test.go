package utils

import (
	"testing"

	"lawfirm-server/internal/config"
	"lawfirm-server/internal/models"
)

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := &config.Config{JWTSecret: "jwt-secret", JWTExpirationMinutes: 15}
	user := models.User{BaseModel: models.BaseModel{ID: "u-42"}, Role: models.RoleAdmin}

	token, expiresAt, err := GenerateToken(&user, cfg)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if expiresAt.IsZero() {
		t.Fatalf("expected expiry")
	}

	claims, err := ValidateToken(token, cfg.JWTSecret)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "u-42" || claims.Role != models.RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := ValidateToken(token, "other-secret"); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := &config.Config{JWTSecret: "jwt-secret", JWTExpirationMinutes: -1}
	user := models.User{BaseModel: models.BaseModel{ID: "u-1"}, Role: models.RoleUser}

	token, _, err := GenerateToken(&user, cfg)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken(token, cfg.JWTSecret); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}
