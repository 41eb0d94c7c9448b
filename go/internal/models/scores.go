package models

// Scores maps player id to accumulated points. Updates are additive only.
type Scores map[string]int

// Add credits points to playerID and returns the new total. Negative points are ignored.
func (s Scores) Add(playerID string, points int) int {
	if points > 0 {
		s[playerID] += points
	}
	return s[playerID]
}

// Clone returns a copy of s. A nil map clones to an empty one.
func (s Scores) Clone() Scores {
	c := make(Scores, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Merge adds every entry of other into a copy of s.
func (s Scores) Merge(other Scores) Scores {
	merged := s.Clone()
	for k, v := range other {
		merged.Add(k, v)
	}
	return merged
}

// Ensure seeds a zero entry for playerID if missing.
func (s Scores) Ensure(playerID string) {
	if _, ok := s[playerID]; !ok {
		s[playerID] = 0
	}
}
