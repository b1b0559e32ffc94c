package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"onboardingbot/internal/entities"
	"onboardingbot/internal/repository"
)

type AuthUsecase struct {
	adminRepo *repository.AdminRepository
	jwtSecret []byte
}

func NewAuthUsecase(repo *repository.AdminRepository, secret string) *AuthUsecase {
	return &AuthUsecase{
		adminRepo: repo,
		jwtSecret: []byte(secret),
	}
}

func (uc *AuthUsecase) Login(ctx context.Context, username, password string) (string, error) {
	admin, err := uc.adminRepo.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if admin == nil {
		return "", errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": admin.ID,
		"role":    admin.Role,
		"exp":     time.Now().Add(time.Hour * 24).Unix(),
	})

	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}
	return tokenString, nil
}

// EnsureAdmin creates the named operator account if it does not exist yet
// (called on startup).
func (uc *AuthUsecase) EnsureAdmin(ctx context.Context, username, password string) error {
	admin, err := uc.adminRepo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if admin != nil {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return uc.adminRepo.Create(ctx, &entities.Admin{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         "admin",
	})
}
