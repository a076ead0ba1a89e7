// ABOUTME: JSON frames exchanged on a sync socket
// ABOUTME: Clients join documents, push changes, and receive changes from other members

package docsync

import (
	"encoding/json"

	"github.com/2389/homie/internal/store"
)

// Frame types.
const (
	TypeJoin    = "join"
	TypeJoined  = "joined"
	TypeLeave   = "leave"
	TypeLeft    = "left"
	TypeChange  = "change"
	TypeChanges = "changes"
	TypeAck     = "ack"
	TypeError   = "error"
)

// Inbound is a frame sent by the client.
type Inbound struct {
	Type  string          `json:"type"`
	DocID string          `json:"docId"`
	Since int64           `json:"since,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a frame sent by the server. Fields are set per type.
type Outbound struct {
	Type    string          `json:"type"`
	DocID   string          `json:"docId,omitempty"`
	Head    *int64          `json:"head,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	ActorID string          `json:"actorId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Changes []ChangeFrame   `json:"changes,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ChangeFrame is one change in a backlog.
type ChangeFrame struct {
	Seq     int64           `json:"seq"`
	ActorID string          `json:"actorId"`
	Data    json.RawMessage `json:"data"`
}

func changeFrame(c *store.Change) ChangeFrame {
	return ChangeFrame{Seq: c.Seq, ActorID: c.ActorID, Data: c.Payload}
}

func joinedFrame(docID string, head int64) Outbound {
	return Outbound{Type: TypeJoined, DocID: docID, Head: &head}
}

func changesFrame(docID string, changes []*store.Change) Outbound {
	frames := make([]ChangeFrame, len(changes))
	for i, c := range changes {
		frames[i] = changeFrame(c)
	}
	return Outbound{Type: TypeChanges, DocID: docID, Changes: frames}
}

func liveFrame(c *store.Change) Outbound {
	return Outbound{Type: TypeChange, DocID: c.DocID, Seq: c.Seq, ActorID: c.ActorID, Data: c.Payload}
}

func errorFrame(docID, msg string) Outbound {
	return Outbound{Type: TypeError, DocID: docID, Error: msg}
}
