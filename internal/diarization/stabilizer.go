package diarization

// RoleMap maps diarization tags to roles. A tag keeps its role for the
// lifetime of the map and each role is held by at most one tag. RoleMap is
// not safe for concurrent use; the owning session serializes access.
type RoleMap struct {
	roles   map[Tag]Role
	holders [roleCount]*Tag
	seen    []Tag
}

func NewRoleMap() *RoleMap {
	return &RoleMap{roles: make(map[Tag]Role)}
}

// Observe records a tag from a final event and returns its role. The first
// unseen tag becomes User, the next AI Agent; any further unseen tag stays
// unassigned.
func (m *RoleMap) Observe(tag Tag) Role {
	if role, ok := m.roles[tag]; ok {
		return role
	}
	role := RoleUnassigned
	for _, candidate := range assignmentOrder {
		if m.holders[candidate] == nil {
			role = candidate
			held := tag
			m.holders[candidate] = &held
			break
		}
	}
	m.roles[tag] = role
	m.seen = append(m.seen, tag)
	return role
}

// Lookup returns the role of a tag without recording it.
func (m *RoleMap) Lookup(tag Tag) (Role, bool) {
	role, ok := m.roles[tag]
	return role, ok
}

// Holder returns the tag that holds an assigned role.
func (m *RoleMap) Holder(role Role) (Tag, bool) {
	if !role.Assigned() || m.holders[role] == nil {
		return 0, false
	}
	return *m.holders[role], true
}

// Reset forgets every tag so assignment restarts from User.
func (m *RoleMap) Reset() {
	m.roles = make(map[Tag]Role)
	m.holders = [roleCount]*Tag{}
	m.seen = nil
}

// Len is the number of distinct tags observed, assigned or not.
func (m *RoleMap) Len() int {
	return len(m.roles)
}

// Assignment is one tag-to-role pair in first-seen order.
type Assignment struct {
	Tag  Tag
	Role Role
}

func (m *RoleMap) Assignments() []Assignment {
	out := make([]Assignment, 0, len(m.seen))
	for _, tag := range m.seen {
		out = append(out, Assignment{Tag: tag, Role: m.roles[tag]})
	}
	return out
}
