package schemas

import "time"

// -- Persisted Session Schemas --

// Cookie is the serialized form of a single browser cookie. It carries enough
// attributes to be restored losslessly into a fresh browser session.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// StorageItem is one key/value pair from an origin's local storage.
type StorageItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OriginState captures the local-storage contents of a single origin.
// Item order is preserved across save/load.
type OriginState struct {
	Origin       string        `json:"origin"`
	LocalStorage []StorageItem `json:"localStorage"`
}

// SessionState is the persisted authentication bundle: cookies plus
// per-origin local storage. The absence of a stored state is not an error,
// it simply means the session must authenticate interactively.
type SessionState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`

	// SavedAt is advisory only. Staleness is discovered empirically by the
	// verifier after a restore, never by comparing timestamps at load time.
	SavedAt time.Time `json:"savedAt,omitempty"`
}

// Empty reports whether the state carries no restorable data.
func (s *SessionState) Empty() bool {
	return s == nil || (len(s.Cookies) == 0 && len(s.Origins) == 0)
}
