package engine

// Assignee is the resolved form of a step's (AssigneeType, AssigneeID) pair.
// Each variant knows how to find the concrete user behind it.
type Assignee interface {
	Resolve(dir Directory) (userID string, ok bool)
}

// PositionAssignee assigns a step to whoever currently holds a position
type PositionAssignee struct {
	PositionID string
}

// Resolve returns the position holder. A vacant or unknown position is unresolved.
func (a PositionAssignee) Resolve(dir Directory) (string, bool) {
	pos, ok := dir.positions[a.PositionID]
	if !ok || pos.HolderUserID == "" {
		return "", false
	}
	return pos.HolderUserID, true
}

// UserAssignee assigns a step to one named user
type UserAssignee struct {
	UserID string
}

// Resolve returns the user id as-is when non-empty
func (a UserAssignee) Resolve(_ Directory) (string, bool) {
	if a.UserID == "" {
		return "", false
	}
	return a.UserID, true
}

type unknownAssignee struct{}

func (unknownAssignee) Resolve(Directory) (string, bool) { return "", false }

// Assignee converts the stored pair into its variant
func (s ProcessStep) Assignee() Assignee {
	switch s.AssigneeType {
	case AssigneePosition:
		return PositionAssignee{PositionID: s.AssigneeID}
	case AssigneeUser:
		return UserAssignee{UserID: s.AssigneeID}
	default:
		return unknownAssignee{}
	}
}

// Directory is an indexed, read-only snapshot of positions and users
type Directory struct {
	positions map[string]OrgPosition
	users     map[string]User
}

// NewDirectory indexes a snapshot. Later duplicates win.
func NewDirectory(positions []OrgPosition, users []User) Directory {
	dir := Directory{
		positions: make(map[string]OrgPosition, len(positions)),
		users:     make(map[string]User, len(users)),
	}
	for _, p := range positions {
		dir.positions[p.ID] = p
	}
	for _, u := range users {
		dir.users[u.ID] = u
	}
	return dir
}

// User looks up a user by id
func (d Directory) User(id string) (User, bool) {
	u, ok := d.users[id]
	return u, ok
}

// Position looks up a position by id
func (d Directory) Position(id string) (OrgPosition, bool) {
	p, ok := d.positions[id]
	return p, ok
}

// Resolve maps a step's abstract assignment to a concrete user id
func Resolve(step ProcessStep, positions []OrgPosition, users []User) (string, bool) {
	return step.Assignee().Resolve(NewDirectory(positions, users))
}

// ResolveIn is Resolve against an already indexed directory
func ResolveIn(step ProcessStep, dir Directory) (string, bool) {
	return step.Assignee().Resolve(dir)
}

func unassigned(step ProcessStep) error {
	return &UnassignedStepError{
		StepID:       step.ID,
		StepTitle:    step.Title,
		AssigneeType: step.AssigneeType,
		AssigneeID:   step.AssigneeID,
	}
}
