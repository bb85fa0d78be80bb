package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/repository"
)

const defaultSSHPort = 22

// NewServer is the input for registering a VPN server.
type NewServer struct {
	Name          string `json:"name"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	ManagementURL string `json:"management_url"`
	MaxClients    int    `json:"max_clients"`
}

// Servers manages the VPN server fleet.
type Servers struct {
	store repository.Store
	log   zerolog.Logger
	opts  options
}

func NewServers(store repository.Store, log zerolog.Logger, opts ...Option) *Servers {
	return &Servers{
		store: store,
		log:   log.With().Str("component", "servers").Logger(),
		opts:  newOptions(opts),
	}
}

func (s *Servers) Add(ctx context.Context, in NewServer) (*model.VPNServer, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Host = strings.TrimSpace(in.Host)
	if in.Name == "" || in.Host == "" {
		return nil, fmt.Errorf("server name and host are required: %w", ErrValidation)
	}
	if in.MaxClients <= 0 {
		return nil, fmt.Errorf("max_clients must be positive: %w", ErrValidation)
	}
	if in.Port == 0 {
		in.Port = defaultSSHPort
	}
	if in.Port < 0 || in.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range: %w", in.Port, ErrValidation)
	}

	srv := &model.VPNServer{
		Name:          in.Name,
		Slug:          slug.Make(in.Name),
		Host:          in.Host,
		Port:          in.Port,
		ManagementURL: strings.TrimSpace(in.ManagementURL),
		MaxClients:    in.MaxClients,
		IsActive:      true,
		CreatedAt:     s.opts.clock(),
	}
	if srv.Slug == "" {
		return nil, fmt.Errorf("server name %q has no usable characters: %w", in.Name, ErrValidation)
	}
	if err := s.store.Servers().Create(ctx, srv); err != nil {
		return nil, storeErr("create server", err)
	}

	s.log.Info().Uint("server_id", srv.ID).Str("slug", srv.Slug).Int("max_clients", srv.MaxClients).Msg("server added")
	return srv, nil
}

func (s *Servers) List(ctx context.Context) ([]model.VPNServer, error) {
	servers, err := s.store.Servers().List(ctx)
	if err != nil {
		return nil, storeErr("list servers", err)
	}
	return servers, nil
}

// SetActive enables or disables a server. Disabled servers keep their
// existing keys but take no new ones.
func (s *Servers) SetActive(ctx context.Context, id uint, active bool) (*model.VPNServer, error) {
	if err := s.store.Servers().SetActive(ctx, id, active); err != nil {
		return nil, storeErr("set server active", err)
	}
	srv, err := s.store.Servers().Get(ctx, id)
	if err != nil {
		return nil, storeErr("load server", err)
	}
	s.log.Info().Uint("server_id", id).Bool("active", active).Msg("server state changed")
	return srv, nil
}

func (s *Servers) MarkHealthy(ctx context.Context, id uint) error {
	if err := s.store.Servers().TouchHealthCheck(ctx, id, s.opts.clock()); err != nil {
		return storeErr("touch health check", err)
	}
	return nil
}

// EnsureDefault registers in when the fleet is empty.
func (s *Servers) EnsureDefault(ctx context.Context, in NewServer) (*model.VPNServer, bool, error) {
	n, err := s.store.Servers().Count(ctx)
	if err != nil {
		return nil, false, storeErr("count servers", err)
	}
	if n > 0 {
		return nil, false, nil
	}
	srv, err := s.Add(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return srv, true, nil
}
