package relay

// subscriptions maps a match to the connections that asked for its
// updates. Empty sets are removed so the table never grows without
// bound as dashboards come and go.
type subscriptions struct {
	sets map[MatchID]map[Client]struct{}
}

func newSubscriptions() *subscriptions {
	return &subscriptions{sets: make(map[MatchID]map[Client]struct{})}
}

// add is idempotent; it reports whether c was newly added.
func (s *subscriptions) add(id MatchID, c Client) bool {
	set := s.sets[id]
	if set == nil {
		set = make(map[Client]struct{})
		s.sets[id] = set
	}
	if _, ok := set[c]; ok {
		return false
	}
	set[c] = struct{}{}
	return true
}

// removeAll drops c from every set it belongs to.
func (s *subscriptions) removeAll(c Client) {
	for id, set := range s.sets {
		delete(set, c)
		if len(set) == 0 {
			delete(s.sets, id)
		}
	}
}

func (s *subscriptions) members(id MatchID) []Client {
	set := s.sets[id]
	out := make([]Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// take removes the set for id and returns who was in it.
func (s *subscriptions) take(id MatchID) []Client {
	out := s.members(id)
	delete(s.sets, id)
	return out
}

func (s *subscriptions) counts() map[MatchID]int {
	out := make(map[MatchID]int, len(s.sets))
	for id, set := range s.sets {
		out[id] = len(set)
	}
	return out
}

func (s *subscriptions) len() int { return len(s.sets) }
