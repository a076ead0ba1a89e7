// ABOUTME: JSON shapes returned by the HTTP API
// ABOUTME: Keeps wire names (camelCase) out of the store models

package api

import (
	"time"

	"github.com/2389/homie/internal/store"
)

type userView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

func newUserView(u *store.User) *userView {
	return &userView{ID: u.ID, Name: u.Name, Username: u.Username}
}

type inventoryView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	MemberIDs []string  `json:"memberIds"`
	IsOwner   bool      `json:"isOwner"`
	CreatedAt time.Time `json:"createdAt"`
}

func newInventoryView(inv *store.Inventory, viewerID string) inventoryView {
	members := inv.MemberIDs
	if members == nil {
		members = []string{}
	}
	return inventoryView{
		ID:        inv.ID,
		Name:      inv.Name,
		OwnerID:   inv.OwnerID,
		MemberIDs: members,
		IsOwner:   inv.OwnerID == viewerID,
		CreatedAt: inv.CreatedAt,
	}
}

type memberView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newMemberViews(members []store.Member) []memberView {
	out := make([]memberView, len(members))
	for i, m := range members {
		out[i] = memberView{ID: m.ID, Name: m.Name}
	}
	return out
}
