package domain

// Actor is an authenticated caller as resolved by the identity provider.
// Admin is an authoritative privilege flag, never inferred from the ID.
type Actor struct {
	ID    string `json:"id"`
	Admin bool   `json:"admin"`
}

// Capabilities is the resolved capability set of an actor relative to one task.
type Capabilities struct {
	ActorID     string `json:"actor_id"`
	IsAssignee  bool   `json:"is_assignee"`
	IsValidator bool   `json:"is_validator"`
	IsAdmin     bool   `json:"is_admin"`
}

// CapabilitiesFor resolves what actor may do on t using the persisted task record.
func CapabilitiesFor(t *Task, actor Actor) Capabilities {
	caps := Capabilities{ActorID: actor.ID, IsAdmin: actor.Admin}
	if t != nil {
		caps.IsAssignee = t.IsAssignee(actor.ID)
		caps.IsValidator = t.IsValidator(actor.ID)
	}
	return caps
}
