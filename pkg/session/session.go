// Package session persists authenticated browser state between runs so an
// operator signs in once per validity window instead of once per workflow.
package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrAuthenticationRequired indicates no valid session exists. Callers
// surface it with remediation rather than launching a visible browser
// mid-run.
var ErrAuthenticationRequired = errors.New("authentication required: no valid session, run 'deckhand login'")

// Session is a captured authentication snapshot: cookies and origin storage
// from the browser context, plus the validity window.
type Session struct {
	State     playwright.StorageState
	SavedAt   time.Time
	ExpiresAt time.Time
	IsValid   bool
}

// Valid reports whether the session can still back an authenticated context
// at the given instant. A nil session is never valid.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.IsValid && now.Before(s.ExpiresAt)
}

// ContextState converts the snapshot into the optional form browser context
// creation accepts.
func (s *Session) ContextState() *playwright.OptionalStorageState {
	cookies := make([]playwright.OptionalCookie, 0, len(s.State.Cookies))
	for _, c := range s.State.Cookies {
		c := c
		cookies = append(cookies, playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   &c.Domain,
			Path:     &c.Path,
			Expires:  &c.Expires,
			HttpOnly: &c.HttpOnly,
			Secure:   &c.Secure,
			SameSite: c.SameSite,
		})
	}
	return &playwright.OptionalStorageState{
		Cookies: cookies,
		Origins: s.State.Origins,
	}
}

// fileFormat is the on-disk JSON shape. Cookies sit at the top level;
// origin storage nests under storageState. External tooling reads this
// file, so the shape is load-bearing.
type fileFormat struct {
	Cookies      []playwright.Cookie `json:"cookies"`
	StorageState struct {
		Origins []playwright.Origin `json:"origins"`
	} `json:"storageState"`
	SavedAt   time.Time `json:"savedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsValid   bool      `json:"isValid"`
}

// MarshalJSON writes the external file shape.
func (s *Session) MarshalJSON() ([]byte, error) {
	var f fileFormat
	f.Cookies = s.State.Cookies
	f.StorageState.Origins = s.State.Origins
	f.SavedAt = s.SavedAt
	f.ExpiresAt = s.ExpiresAt
	f.IsValid = s.IsValid
	return json.Marshal(f)
}

// UnmarshalJSON reads the external file shape.
func (s *Session) UnmarshalJSON(data []byte) error {
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	s.State = playwright.StorageState{
		Cookies: f.Cookies,
		Origins: f.StorageState.Origins,
	}
	s.SavedAt = f.SavedAt
	s.ExpiresAt = f.ExpiresAt
	s.IsValid = f.IsValid
	return nil
}
