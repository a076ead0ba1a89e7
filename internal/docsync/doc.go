// Package docsync serves replicated documents over authenticated WebSockets.
//
// The WebSocket gate in package auth hands each accepted socket to Handler,
// which speaks JSON text frames:
//
//	-> {"type":"join","docId":"...","since":0}
//	<- {"type":"joined","docId":"...","head":12}
//	<- {"type":"changes","docId":"...","changes":[{"seq":1,"actorId":"...","data":...}]}
//	-> {"type":"change","docId":"...","data":...}
//	<- {"type":"ack","docId":"...","seq":13}
//	<- {"type":"change","docId":"...","seq":14,"actorId":"...","data":...}
//	-> {"type":"leave","docId":"..."}
//	<- {"type":"left","docId":"..."}
//	<- {"type":"error","docId":"...","error":"access denied"}
//
// Joining requires owner or member access to the inventory whose id is the
// document id; writes re-check it. The backlog frame is omitted when the
// client is already at head. Live changes are never echoed to the socket
// that sent them. A client that sees a gap in sequence numbers rejoins with
// since set to the last sequence it applied.
package docsync
