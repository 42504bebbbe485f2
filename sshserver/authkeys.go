package sshserver

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// AuthorizedKeys is an authorized_keys file that is re-read when it changes on disk.
// A missing file authorizes nobody.
type AuthorizedKeys struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	keys    map[string]struct{}
}

// LoadAuthorizedKeys reads path once and returns a reloading key set.
func LoadAuthorizedKeys(path string) (*AuthorizedKeys, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("authorized keys path is required")
	}
	a := &AuthorizedKeys{path: path, keys: map[string]struct{}{}}
	if err := a.reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// Len reports the number of loaded keys.
func (a *AuthorizedKeys) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}

// Allowed reports whether key is listed. The file is reloaded first if its
// modification time or size changed.
func (a *AuthorizedKeys) Allowed(key ssh.PublicKey) (bool, error) {
	if a == nil || key == nil {
		return false, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadLocked(); err != nil {
		return false, err
	}
	_, ok := a.keys[string(key.Marshal())]
	return ok, nil
}

func (a *AuthorizedKeys) reload() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reloadLocked()
}

func (a *AuthorizedKeys) reloadLocked() error {
	info, err := os.Stat(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			a.keys = map[string]struct{}{}
			a.modTime = time.Time{}
			a.size = 0
			return nil
		}
		return fmt.Errorf("stat authorized keys: %w", err)
	}
	if info.ModTime().Equal(a.modTime) && info.Size() == a.size && a.keys != nil {
		return nil
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read authorized keys: %w", err)
	}
	keys, err := parseAuthorizedKeys(data)
	if err != nil {
		return err
	}
	a.keys = keys
	a.modTime = info.ModTime()
	a.size = info.Size()
	return nil
}

func parseAuthorizedKeys(data []byte) (map[string]struct{}, error) {
	keys := map[string]struct{}{}
	for i, raw := range bytes.Split(data, []byte("\n")) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey(line)
		if err != nil {
			return nil, fmt.Errorf("parse authorized keys line %d: %w", i+1, err)
		}
		keys[string(key.Marshal())] = struct{}{}
	}
	return keys, nil
}
