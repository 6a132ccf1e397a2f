package bootstrap

import (
	"context"

	"crisishub/config"
	"crisishub/core/auth"
	"crisishub/core/store"
	"crisishub/core/utils"
)

// EnsureDefaultAdmin seeds the configured admin account when no user
// with that username exists yet.
func EnsureDefaultAdmin(ctx context.Context, users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) error {
	existing, err := users.FindByUsername(ctx, cfg.BootstrapAdmin.AdminUsername)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	hash, err := auth.HashPassword(cfg.BootstrapAdmin.AdminPassword)
	if err != nil {
		return err
	}
	admin := &store.User{
		Username:     cfg.BootstrapAdmin.AdminUsername,
		Email:        cfg.BootstrapAdmin.AdminEmail,
		FullName:     "System Administrator",
		PasswordHash: hash,
		Role:         store.RoleAdmin,
		Active:       true,
	}
	if _, err := users.Create(ctx, admin); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("BOOTSTRAP default admin created username=%s", admin.Username)
	}
	return nil
}
