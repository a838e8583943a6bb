package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// Initialize writes the default configuration and a fresh SSH host key into
// dir, skipping anything that already exists, then loads the result.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	configPath := filepath.Join(dir, ConfigurationName)
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		logger.Printf("Writing %s", configPath)
		if err := os.WriteFile(configPath, defaultConfigData, 0644); err != nil {
			return nil, err
		}
	} else {
		logger.Printf("Keeping existing %s", configPath)
	}

	keyPath := filepath.Join(dir, PrivateKeyName)
	if _, err := os.Stat(keyPath); errors.Is(err, fs.ErrNotExist) {
		logger.Printf("Generating host key %s", keyPath)
		keyPem, err := generateHostKey()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(keyPath, keyPem, 0600); err != nil {
			return nil, err
		}
	} else {
		logger.Printf("Keeping existing host key %s", keyPath)
	}

	return Load(dir)
}

func generateHostKey() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(block), nil
}
