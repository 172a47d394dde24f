package sdmauth

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

// Version of the token state that we marshal/unmarshal.  The refresh token
// and client secret stay in the configuration and are never written here.
type stateMarshal struct {
	ProjectID         string    `json:"project-id"`
	ClientID          string    `json:"client-id"`
	AccessToken       string    `json:"access-token"`
	AccessTokenExpiry time.Time `json:"access-token-expiry"`
}

// obfuscate tokens/secrets when stringified
//
func (m *Manager) String() string {
	token := m.Token()

	return fmt.Sprintf("%s TokenURL [%s] accessToken [%s] accessTokenExpiry [%s]",
		m.creds, m.TokenURL, hashOf(token.Value), token.ExpiresAt)
}

// Save writes the cached access token to fileName, and remembers the file so
// later refreshes are persisted too
func (m *Manager) Save(fileName string) error {
	token := m.Token()

	sm := stateMarshal{
		ProjectID:         m.creds.ProjectID,
		ClientID:          m.creds.ClientID,
		AccessToken:       token.Value,
		AccessTokenExpiry: token.ExpiresAt,
	}

	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "opening token state %s for write", fileName)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(sm); err != nil {
		return errors.Wrapf(err, "saving token state to %s", fileName)
	}

	m.mu.Lock()
	m.fileName = fileName
	m.mu.Unlock()

	return nil
}

func (m *Manager) save() error {
	m.mu.RLock()
	fileName := m.fileName
	m.mu.RUnlock()

	if fileName == "" {
		return nil
	}

	return m.Save(fileName)
}

// Load restores an access token saved by an earlier process.  State saved
// for a different client or project is ignored.  The file is remembered
// either way, so the next refresh overwrites it.
func (m *Manager) Load(fileName string) error {
	sm := stateMarshal{}

	file, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(err, "opening token state %s for read", fileName)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&sm); err != nil {
		return errors.Wrapf(err, "loading token state from %s", fileName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileName = fileName

	if sm.ClientID != m.creds.ClientID || sm.ProjectID != m.creds.ProjectID {
		logging.Logger(nil).Warnf("ignoring token state in %s, saved for a different client or project", fileName)
		return nil
	}

	m.token = AccessToken{
		Value:     sm.AccessToken,
		ExpiresAt: sm.AccessTokenExpiry,
	}

	return nil
}
