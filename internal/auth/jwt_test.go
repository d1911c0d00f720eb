package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aura-interview/attention/internal/models"
)

func TestGenerateValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()
	tok, err := svc.Generate(id, "c@example.com", models.RoleCandidate)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := svc.Validate(tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != id || claims.Role != models.RoleCandidate || claims.Email != "c@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService("secret", 1)
	tok, _ := svc.Generate(uuid.New(), "a@example.com", models.RoleAdmin)

	other := NewJWTService("other", 1)
	if _, err := other.Validate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: err = %v", err)
	}

	expired := NewJWTService("secret", 1)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := expired.Validate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: err = %v", err)
	}

	if _, err := svc.Validate("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: err = %v", err)
	}
}
