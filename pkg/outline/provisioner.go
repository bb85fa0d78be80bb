package outline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
)

// KeyBinder stores the panel id of an issued key.
type KeyBinder interface {
	AttachProviderKey(ctx context.Context, keyID uint, providerKeyID string) error
}

// Provisioner mirrors issued and released keys onto the Outline panel of
// their server. It runs after the database transaction has committed.
type Provisioner struct {
	client *Client
	keys   KeyBinder
	log    zerolog.Logger
}

func NewProvisioner(client *Client, keys KeyBinder, log zerolog.Logger) *Provisioner {
	return &Provisioner{
		client: client,
		keys:   keys,
		log:    log.With().Str("component", "outline").Logger(),
	}
}

func keyName(k *model.VPNKey) string {
	return fmt.Sprintf("gshvpn-user%d-key%d", k.UserID, k.ID)
}

// Attach creates the panel key for k. Servers without a management URL
// are skipped and return a nil access key.
func (p *Provisioner) Attach(ctx context.Context, k *model.VPNKey) (*AccessKey, error) {
	if k.Server == nil || k.Server.ManagementURL == "" {
		return nil, nil
	}

	ak, err := p.client.CreateAccessKey(ctx, k.Server.ManagementURL, keyName(k))
	if ak == nil {
		return nil, fmt.Errorf("create outline key for key %d: %w", k.ID, err)
	}
	if err != nil {
		p.log.Warn().Err(err).Uint("key_id", k.ID).Msg("outline key created but not renamed")
	}

	if err := p.keys.AttachProviderKey(ctx, k.ID, ak.ID); err != nil {
		return ak, fmt.Errorf("bind outline key %s to key %d: %w", ak.ID, k.ID, err)
	}
	k.ProviderKeyID = &ak.ID

	p.log.Info().Uint("key_id", k.ID).Str("provider_key_id", ak.ID).Uint("server_id", k.Server.ID).Msg("outline key attached")
	return ak, nil
}

// Detach removes the panel key of k. Keys never provisioned, and keys the
// panel no longer knows, are treated as detached.
func (p *Provisioner) Detach(ctx context.Context, k *model.VPNKey) error {
	if k.ProviderKeyID == nil || k.Server == nil || k.Server.ManagementURL == "" {
		return nil
	}
	err := p.client.DeleteAccessKey(ctx, k.Server.ManagementURL, *k.ProviderKeyID)
	if errors.Is(err, ErrKeyNotFound) {
		p.log.Debug().Uint("key_id", k.ID).Msg("outline key already gone")
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete outline key for key %d: %w", k.ID, err)
	}
	p.log.Info().Uint("key_id", k.ID).Str("provider_key_id", *k.ProviderKeyID).Msg("outline key detached")
	return nil
}

// DetachAll detaches every key and joins the failures.
func (p *Provisioner) DetachAll(ctx context.Context, keys []model.VPNKey) error {
	var errs []error
	for i := range keys {
		if err := p.Detach(ctx, &keys[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ping asks the server's panel for its info.
func (p *Provisioner) Ping(ctx context.Context, s *model.VPNServer) error {
	if s.ManagementURL == "" {
		return fmt.Errorf("server %d has no management url", s.ID)
	}
	_, err := p.client.ServerInfo(ctx, s.ManagementURL)
	return err
}
