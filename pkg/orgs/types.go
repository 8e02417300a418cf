package orgs

import (
	"fmt"
	"time"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
)

// Organization is a named group of users
type Organization struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Owners    []string       `json:"owners"`
	Members   []string       `json:"members"`
	Profile   map[string]any `json:"profile,omitempty"`
	CreatedAt time.Time      `json:"ctime"`
	UpdatedAt time.Time      `json:"mtime"`

	rev int64
}

// IsMember reports whether username is a member
func (o *Organization) IsMember(username string) bool {
	return indexOf(o.Members, username) >= 0
}

// IsOwner reports whether username is an owner
func (o *Organization) IsOwner(username string) bool {
	return indexOf(o.Owners, username) >= 0
}

// SoleOwner reports whether username is the only owner
func (o *Organization) SoleOwner(username string) bool {
	return len(o.Owners) == 1 && o.Owners[0] == username
}

func (o *Organization) addMember(username string) error {
	if o.IsMember(username) {
		return apierrors.Conflict(fmt.Sprintf("%s is already a member of %s", username, o.Name))
	}
	o.Members = append(o.Members, username)
	return nil
}

func (o *Organization) removeMember(username string) error {
	if !o.IsMember(username) {
		return apierrors.NotFound(fmt.Sprintf("%s is not a member of %s", username, o.Name))
	}
	if o.IsOwner(username) {
		if err := o.removeOwner(username); err != nil {
			return err
		}
	}
	o.Members = remove(o.Members, username)
	return nil
}

func (o *Organization) addOwner(username string) error {
	if o.IsOwner(username) {
		return apierrors.Conflict(fmt.Sprintf("%s is already an owner of %s", username, o.Name))
	}
	o.Owners = append(o.Owners, username)
	if !o.IsMember(username) {
		o.Members = append(o.Members, username)
	}
	return nil
}

func (o *Organization) removeOwner(username string) error {
	if !o.IsOwner(username) {
		return apierrors.NotFound(fmt.Sprintf("%s is not an owner of %s", username, o.Name))
	}
	if len(o.Owners) == 1 {
		return apierrors.Conflict(fmt.Sprintf("cannot remove the only owner of %s", o.Name))
	}
	o.Owners = remove(o.Owners, username)
	return nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func remove(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
