package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcutil/base58"

	"github.com/mmynk/microsplit/internal/models"
)

var errKeyExists = errors.New("key file already exists (use --force to overwrite)")

// generateKey writes a fresh ed25519 private key to path as base58.
func generateKey(path string, force bool) (models.Identity, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return models.Identity{}, errKeyExists
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := writeSecret(path, base58.Encode(priv)); err != nil {
		return models.Identity{}, err
	}
	return models.IdentityFromPublicKey(pub)
}

// loadKey reads the private key at path.
func loadKey(path string) (ed25519.PrivateKey, models.Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, models.Identity{}, fmt.Errorf("failed to read key (run keygen first): %w", err)
	}
	key := base58.Decode(strings.TrimSpace(string(raw)))
	if len(key) != ed25519.PrivateKeySize {
		return nil, models.Identity{}, fmt.Errorf("invalid key file %s", path)
	}
	priv := ed25519.PrivateKey(key)
	id, err := models.IdentityFromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, models.Identity{}, err
	}
	return priv, id, nil
}

func writeSecret(path, value string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(value+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readToken(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
