package users

import (
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/httpusers/pkg/permissions"
)

// Status is the account activation state
type Status string

const (
	StatusNew     Status = "new"
	StatusPending Status = "pending"
	StatusActive  Status = "active"
)

func (s Status) rank() int {
	switch s {
	case StatusNew:
		return 0
	case StatusPending:
		return 1
	case StatusActive:
		return 2
	}
	return -1
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Auth methods recorded on an authenticated request
const (
	MethodPassword = "username/password"
	MethodToken    = "token"
)

// AuthMethod records how a request authenticated. ID is the API token
// label for token auth.
type AuthMethod struct {
	Method string `json:"method"`
	ID     string `json:"id,omitempty"`
}

// IsPassword reports whether the request used the account password
func (m AuthMethod) IsPassword() bool {
	return m.Method == MethodPassword
}

// ThirdPartyToken is a credential for an external provider held on behalf
// of the user
type ThirdPartyToken struct {
	ID        string         `json:"id"`
	Provider  string         `json:"provider,omitempty"`
	Token     string         `json:"token"`
	App       string         `json:"app"`
	Info      map[string]any `json:"info,omitempty"`
	Operation string         `json:"operation,omitempty"`
}

// Operations tagged on token writes
const (
	OperationInsert = "insert"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// User is the stored account
type User struct {
	ID               string             `json:"id"`
	Username         string             `json:"username"`
	Password         string             `json:"password,omitempty"`
	PasswordSalt     string             `json:"password-salt,omitempty"`
	Email            string             `json:"email"`
	Status           Status             `json:"status"`
	InviteCode       string             `json:"inviteCode,omitempty"`
	Shake            string             `json:"shake,omitempty"`
	Profile          map[string]any     `json:"profile,omitempty"`
	Permissions      permissions.Grants `json:"permissions,omitempty"`
	APITokens        map[string]string  `json:"apiTokens,omitempty"`
	ThirdPartyTokens []ThirdPartyToken  `json:"thirdPartyTokens,omitempty"`
	ConfirmedAt      *time.Time         `json:"confirm-time,omitempty"`
	CreatedAt        time.Time          `json:"ctime"`
	UpdatedAt        time.Time          `json:"mtime"`

	rev int64
}

// HasPassword reports whether a password digest is stored
func (u *User) HasPassword() bool {
	return u.Password != ""
}

// Normalize lowercases the username and derives the id from it
func Normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// View is the user as returned over the API: credentials removed and,
// for non-password auth, token values reduced to their names.
type View struct {
	ID               string             `json:"id"`
	Username         string             `json:"username"`
	Email            string             `json:"email"`
	Status           Status             `json:"status"`
	InviteCode       string             `json:"inviteCode,omitempty"`
	Shake            string             `json:"shake,omitempty"`
	Profile          map[string]any     `json:"profile,omitempty"`
	Permissions      permissions.Grants `json:"permissions,omitempty"`
	APITokens        any                `json:"apiTokens"`
	ThirdPartyTokens any                `json:"thirdPartyTokens"`
	ConfirmedAt      *time.Time         `json:"confirm-time,omitempty"`
	CreatedAt        time.Time          `json:"ctime"`
	UpdatedAt        time.Time          `json:"mtime"`
}

// Restricted projects u for a caller that authenticated with method
func Restricted(u *User, method AuthMethod) View {
	v := View{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Status:      u.Status,
		InviteCode:  u.InviteCode,
		Shake:       u.Shake,
		Profile:     u.Profile,
		Permissions: u.Permissions,
		ConfirmedAt: u.ConfirmedAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}

	if method.IsPassword() {
		tokens := u.APITokens
		if tokens == nil {
			tokens = map[string]string{}
		}
		thirdParty := u.ThirdPartyTokens
		if thirdParty == nil {
			thirdParty = []ThirdPartyToken{}
		}
		v.APITokens = tokens
		v.ThirdPartyTokens = thirdParty
		return v
	}

	labels := make([]string, 0, len(u.APITokens))
	for label := range u.APITokens {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	ids := make([]string, 0, len(u.ThirdPartyTokens))
	for _, t := range u.ThirdPartyTokens {
		ids = append(ids, t.ID)
	}
	v.APITokens = labels
	v.ThirdPartyTokens = ids
	return v
}

// Key is a named public key attached to a user
type Key struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Key      string `json:"key"`
}
