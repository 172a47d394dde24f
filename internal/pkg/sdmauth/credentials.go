package sdmauth

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
)

// Credentials are the long-lived OAuth client and Device Access project
// settings.  They are supplied once at startup and never modified.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	ProjectID    string
}

// Validate reports any missing credential fields
func (c Credentials) Validate() error {
	var missing []string

	if c.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if c.RefreshToken == "" {
		missing = append(missing, "refresh token")
	}
	if c.ProjectID == "" {
		missing = append(missing, "project id")
	}

	if len(missing) > 0 {
		return fmt.Errorf("incomplete credentials, missing: %s", strings.Join(missing, ", "))
	}

	return nil
}

func hashOf(s string) string {
	if s == "" {
		return ""
	}

	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// obfuscate secrets when stringified
//
func (c Credentials) String() string {
	return fmt.Sprintf("ProjectID [%s], ClientID [%s], ClientSecret [%s], RefreshToken [%s]",
		c.ProjectID, c.ClientID, hashOf(c.ClientSecret), hashOf(c.RefreshToken))
}
