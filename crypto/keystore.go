package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// Admin signing keys live in standard v3 keystore files so operators can
// manage them with common Ethereum tooling. Files are written 0600 and the
// parent directory 0700.

// SaveToKeystore encrypts key with passphrase and writes it to path,
// replacing any existing file.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("crypto: create keystore dir: %w", err)
	}

	staged, cleanup, err := stageKeystoreFile(dir, key, passphrase)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(staged, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// stageKeystoreFile runs the geth keystore importer in a scratch directory,
// because the upstream API only writes files it names itself, and returns the
// staged file path together with a cleanup for the scratch directory.
func stageKeystoreFile(dir string, key *PrivateKey, passphrase string) (string, func(), error) {
	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	ks := keystore.NewKeyStore(tmpDir, keystore.StandardScryptN, keystore.StandardScryptP)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("crypto: encrypt key: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if len(entries) == 0 {
		cleanup()
		return "", nil, errors.New("crypto: keystore importer produced no file")
	}
	return filepath.Join(tmpDir, entries[0].Name()), cleanup, nil
}

// LoadFromKeystore decrypts the v3 keystore file at path with passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt keystore %s: %w", filepath.Base(path), err)
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
