package entity

// Scope is the set of owners whose rows a caller may see.
// All overrides UserIDs. A non-All scope with no ids matches nothing.
type Scope struct {
	All     bool
	UserIDs []int64
}

// AllScope matches every row
func AllScope() Scope {
	return Scope{All: true}
}

// OwnersScope matches rows owned by any of ids
func OwnersScope(ids ...int64) Scope {
	return Scope{UserIDs: append([]int64(nil), ids...)}
}

// Empty reports whether the scope can match no row at all.
// Stores must short-circuit on it instead of issuing an empty IN ().
func (s Scope) Empty() bool {
	return !s.All && len(s.UserIDs) == 0
}

// Allows reports whether a row owned by userID is inside the scope
func (s Scope) Allows(userID int64) bool {
	if s.All {
		return true
	}
	for _, id := range s.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
