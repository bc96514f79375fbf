package relay

// Room is a named group of connections at the relay. A room exists only
// while it has members; the hub creates it on the first admitted join and
// deletes it when the last member leaves.
type Room struct {
	ID string

	members map[*Client]struct{}
}

func newRoom(id string) *Room {
	return &Room{ID: id, members: make(map[*Client]struct{})}
}

// Len returns the number of connections in the room.
func (r *Room) Len() int {
	return len(r.members)
}

// Has reports whether c is a member of the room.
func (r *Room) Has(c *Client) bool {
	_, ok := r.members[c]
	return ok
}

func (r *Room) add(c *Client) {
	r.members[c] = struct{}{}
}

func (r *Room) remove(c *Client) {
	delete(r.members, c)
}

// others returns every member except c.
func (r *Room) others(c *Client) []*Client {
	out := make([]*Client, 0, len(r.members))
	for member := range r.members {
		if member != c {
			out = append(out, member)
		}
	}
	return out
}
