package constants

// Action defines the type for audit-visible document mutations.
// Using a dedicated type enhances type safety.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionCustom  Action = "custom"
)

// String returns the string representation of the Action.
func (a Action) String() string {
	return string(a)
}
