package room

import (
	"context"
	"encoding/json"
)

// send delivers one event to a single connection.
func (c *Coordinator) send(connID, eventType string, payload any) {
	data, err := json.Marshal(Outbound{Type: eventType, Payload: payload})
	if err != nil {
		c.logger.Error("Failed to encode event", "type", eventType, "error", err)
		return
	}
	c.deliver(connID, data)
}

// broadcastToRoom delivers an event to every member of roomID with a live
// connection, skipping exclude. The payload is encoded once.
func (c *Coordinator) broadcastToRoom(ctx context.Context, roomID, exclude, eventType string, payload any) {
	data, err := json.Marshal(Outbound{Type: eventType, Payload: payload})
	if err != nil {
		c.logger.Error("Failed to encode event", "type", eventType, "error", err)
		return
	}

	members, err := c.store.GetUsersByRoom(ctx, roomID)
	if err != nil {
		c.logger.Error("Failed to resolve room members for broadcast", "roomId", roomID, "error", err)
		return
	}

	delivered := 0
	for _, m := range members {
		if m.SocketID == nil || *m.SocketID == exclude {
			continue
		}
		if c.deliver(*m.SocketID, data) {
			delivered++
		}
	}
	c.logger.Debug("Broadcast", "roomId", roomID, "type", eventType, "delivered", delivered)
}

// deliver writes data to connID. Connections that are closed or fail the
// write are unregistered on the spot.
func (c *Coordinator) deliver(connID string, data []byte) bool {
	client, ok := c.registry.Lookup(connID)
	if !ok {
		return false
	}
	if !client.IsOpen() {
		c.registry.Unregister(connID)
		return false
	}
	if err := client.Send(data); err != nil {
		c.logger.Warn("Send failed, dropping connection", "connId", connID, "error", err)
		c.registry.Unregister(connID)
		return false
	}
	return true
}
