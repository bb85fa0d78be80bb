package seed

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/service"
	"gshvpn_backend/pkg/config"
)

type AdminSeeder interface {
	EnsureAdmin(ctx context.Context, email, password string) (*model.User, bool, error)
}

type ServerSeeder interface {
	EnsureDefault(ctx context.Context, in service.NewServer) (*model.VPNServer, bool, error)
}

// Run creates the configured admin account and default server when they
// are missing. Empty settings are skipped.
func Run(ctx context.Context, admins AdminSeeder, servers ServerSeeder, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		user, created, err := admins.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			log.Info().Uint("user_id", user.ID).Str("email", user.Email).Msg("admin account seeded")
		}
	}

	if cfg.DefaultServer.Enabled() {
		srv, created, err := servers.EnsureDefault(ctx, service.NewServer{
			Name:          cfg.DefaultServer.Name,
			Host:          cfg.DefaultServer.Host,
			Port:          cfg.DefaultServer.Port,
			ManagementURL: cfg.DefaultServer.ManagementURL,
			MaxClients:    cfg.DefaultServer.MaxClients,
		})
		if err != nil {
			return fmt.Errorf("seed default server: %w", err)
		}
		if created {
			log.Info().Uint("server_id", srv.ID).Str("host", srv.Host).Msg("default server seeded")
		}
	}

	return nil
}
