// Package credentials mints the scan secret handed to an establishment once
// its request is accepted.
package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"concierge/pkg/logger"
	"concierge/pkg/model"

	"golang.org/x/crypto/hkdf"
)

const (
	secretSize = 32
	infoPrefix = "concierge/scan-credential/v1:"
)

type Store interface {
	InsertCredentialIfAbsent(ctx context.Context, cred *model.ScanCredential) (bool, error)
	FindCredential(ctx context.Context, requestID string) (*model.ScanCredential, error)
}

// Provisioner derives secrets deterministically from the master key, so
// repeated provisioning of one request always yields the same secret.
type Provisioner struct {
	store     Store
	masterKey []byte
	log       *logger.Logger
	now       func() time.Time
}

func NewProvisioner(store Store, masterKey string, log *logger.Logger) *Provisioner {
	return &Provisioner{
		store:     store,
		masterKey: []byte(masterKey),
		log:       log,
		now:       time.Now,
	}
}

func (p *Provisioner) Derive(requestID string) (string, error) {
	if requestID == "" {
		return "", fmt.Errorf("request id is required")
	}

	r := hkdf.New(sha256.New, p.masterKey, nil, []byte(infoPrefix+requestID))
	buf := make([]byte, secretSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to derive scan secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Provision stores the credential for requestID unless one already exists.
func (p *Provisioner) Provision(ctx context.Context, requestID string) error {
	secret, err := p.Derive(requestID)
	if err != nil {
		return err
	}

	inserted, err := p.store.InsertCredentialIfAbsent(ctx, &model.ScanCredential{
		RequestID: requestID,
		Secret:    secret,
		CreatedAt: p.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return fmt.Errorf("failed to store scan credential: %w", err)
	}

	if inserted {
		p.log.Info("Scan credential provisioned", "request_id", requestID)
	} else {
		p.log.Debug("Scan credential already present", "request_id", requestID)
	}
	return nil
}
