package orgs

import (
	"encoding/json"
	"fmt"

	"github.com/platinummonkey/httpusers/pkg/storage"
)

// encode maps an organization onto a document indexed by name, member
// and owner
func encode(org *Organization) (*storage.Document, error) {
	body, err := json.Marshal(org)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal organization: %w", err)
	}
	return &storage.Document{
		ID:   docID(org.Name),
		Kind: Kind,
		Rev:  org.rev,
		Body: body,
		Keys: map[string][]string{
			viewName:   {org.Name},
			viewMember: append([]string(nil), org.Members...),
			viewOwner:  append([]string(nil), org.Owners...),
		},
	}, nil
}

// applyDoc copies the store-assigned revision and timestamps back onto org
func applyDoc(org *Organization, doc *storage.Document) {
	org.rev = doc.Rev
	if org.CreatedAt.IsZero() {
		org.CreatedAt = doc.CreatedAt
	}
	org.UpdatedAt = doc.UpdatedAt
}

func decode(doc *storage.Document) (*Organization, error) {
	var org Organization
	if err := json.Unmarshal(doc.Body, &org); err != nil {
		return nil, fmt.Errorf("failed to decode organization %s: %w", doc.ID, err)
	}
	if org.Owners == nil {
		org.Owners = []string{}
	}
	if org.Members == nil {
		org.Members = []string{}
	}
	applyDoc(&org, doc)
	return &org, nil
}

func decodeAll(docs []*storage.Document) ([]*Organization, error) {
	out := make([]*Organization, 0, len(docs))
	for _, doc := range docs {
		org, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, nil
}
