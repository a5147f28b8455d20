package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
)

func testState() *playwright.StorageState {
	return &playwright.StorageState{
		Cookies: []playwright.Cookie{
			{
				Name:    "portal_auth",
				Value:   "tok-abc123",
				Domain:  ".vault.studio.example",
				Path:    "/",
				Expires: 1924992000,
				Secure:  true,
			},
			{
				Name:   "csrf",
				Value:  "xyz",
				Domain: "tracker.studio.example",
				Path:   "/",
			},
		},
		Origins: []playwright.Origin{
			{
				Origin: "https://vault.studio.example",
				LocalStorage: []playwright.NameValue{
					{Name: "workspace", Value: "studio-main"},
				},
			},
		},
	}
}

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "session.json"), ttl)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t, 8*time.Hour)

	saved, err := store.Save(testState())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected a session, got nil")
	}

	if len(loaded.State.Cookies) != 2 {
		t.Errorf("Expected 2 cookies, got %d", len(loaded.State.Cookies))
	}
	if loaded.State.Cookies[0].Name != "portal_auth" {
		t.Errorf("Expected cookie portal_auth, got %q", loaded.State.Cookies[0].Name)
	}
	if len(loaded.State.Origins) != 1 {
		t.Errorf("Expected 1 origin, got %d", len(loaded.State.Origins))
	}
	if got := loaded.State.Origins[0].LocalStorage[0].Value; got != "studio-main" {
		t.Errorf("Expected localStorage value studio-main, got %q", got)
	}

	if !loaded.SavedAt.Equal(saved.SavedAt) {
		t.Errorf("SavedAt changed in round trip: %v vs %v", saved.SavedAt, loaded.SavedAt)
	}
	if !loaded.ExpiresAt.Equal(saved.ExpiresAt) {
		t.Errorf("ExpiresAt changed in round trip: %v vs %v", saved.ExpiresAt, loaded.ExpiresAt)
	}
	if !loaded.IsValid {
		t.Error("Expected loaded session to be valid")
	}
}

func TestFileShape(t *testing.T) {
	store := newTestStore(t, time.Hour)

	if _, err := store.Save(testState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("Failed to read session file: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Session file is not valid JSON: %v", err)
	}

	// Cookies at the top level, origins nested under storageState.
	for _, key := range []string{"cookies", "storageState", "savedAt", "expiresAt", "isValid"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Session file missing top-level key %q", key)
		}
	}

	var wrapper struct {
		Origins []json.RawMessage `json:"origins"`
	}
	if err := json.Unmarshal(raw["storageState"], &wrapper); err != nil {
		t.Fatalf("storageState is not an object with origins: %v", err)
	}
	if len(wrapper.Origins) != 1 {
		t.Errorf("Expected 1 origin under storageState, got %d", len(wrapper.Origins))
	}
}

func TestValidity(t *testing.T) {
	now := time.Now()

	t.Run("fresh session is valid", func(t *testing.T) {
		sess := &Session{SavedAt: now, ExpiresAt: now.Add(8 * time.Hour), IsValid: true}
		if !sess.Valid(now) {
			t.Error("Expected fresh session to be valid")
		}
	})

	t.Run("session expires at the boundary", func(t *testing.T) {
		sess := &Session{SavedAt: now.Add(-8 * time.Hour), ExpiresAt: now, IsValid: true}
		if sess.Valid(now) {
			t.Error("Expected session at expiry instant to be invalid")
		}
	})

	t.Run("invalidated session is invalid regardless of window", func(t *testing.T) {
		sess := &Session{SavedAt: now, ExpiresAt: now.Add(time.Hour), IsValid: false}
		if sess.Valid(now) {
			t.Error("Expected invalidated session to be invalid")
		}
	})

	t.Run("nil session is invalid", func(t *testing.T) {
		var sess *Session
		if sess.Valid(now) {
			t.Error("Expected nil session to be invalid")
		}
	})
}

func TestLoadMissingFile(t *testing.T) {
	store := newTestStore(t, time.Hour)

	sess, err := store.Load()
	if err != nil {
		t.Fatalf("Load of missing file should not error, got: %v", err)
	}
	if sess != nil {
		t.Error("Expected nil session for missing file")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	store := newTestStore(t, time.Hour)

	if err := os.MkdirAll(filepath.Dir(store.Path()), 0750); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte("{not-json"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	sess, err := store.Load()
	if err != nil {
		t.Fatalf("Corrupt file should be treated as no session, got error: %v", err)
	}
	if sess != nil {
		t.Error("Expected nil session for corrupt file")
	}
}

func TestActive(t *testing.T) {
	t.Run("returns valid session", func(t *testing.T) {
		store := newTestStore(t, time.Hour)
		if _, err := store.Save(testState()); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		sess, err := store.Active(time.Now())
		if err != nil {
			t.Fatalf("Active failed: %v", err)
		}
		if sess == nil {
			t.Fatal("Expected a session")
		}
	})

	t.Run("missing session yields ErrAuthenticationRequired", func(t *testing.T) {
		store := newTestStore(t, time.Hour)

		_, err := store.Active(time.Now())
		if err != ErrAuthenticationRequired {
			t.Errorf("Expected ErrAuthenticationRequired, got %v", err)
		}
	})

	t.Run("expired session yields ErrAuthenticationRequired", func(t *testing.T) {
		store := newTestStore(t, time.Hour)
		if _, err := store.Save(testState()); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		_, err := store.Active(time.Now().Add(2 * time.Hour))
		if err != ErrAuthenticationRequired {
			t.Errorf("Expected ErrAuthenticationRequired, got %v", err)
		}
	})
}

func TestClear(t *testing.T) {
	store := newTestStore(t, time.Hour)

	if _, err := store.Save(testState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("Expected session file to be removed")
	}

	// Clearing again is a no-op.
	if err := store.Clear(); err != nil {
		t.Fatalf("Second clear failed: %v", err)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	store := newTestStore(t, time.Hour)

	if _, err := store.Save(testState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected temp file to be gone after save")
	}
}

func TestContextState(t *testing.T) {
	sess := &Session{State: *testState()}

	opt := sess.ContextState()
	if len(opt.Cookies) != 2 {
		t.Fatalf("Expected 2 optional cookies, got %d", len(opt.Cookies))
	}
	if opt.Cookies[0].Name != "portal_auth" || opt.Cookies[0].Value != "tok-abc123" {
		t.Errorf("First cookie not carried over: %+v", opt.Cookies[0])
	}
	if opt.Cookies[0].Domain == nil || *opt.Cookies[0].Domain != ".vault.studio.example" {
		t.Error("Cookie domain not carried over")
	}
	if len(opt.Origins) != 1 {
		t.Errorf("Expected 1 origin, got %d", len(opt.Origins))
	}
}
