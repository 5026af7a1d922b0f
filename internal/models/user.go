package models

// SystemUser represents an operator for actions performed by the system itself.
var SystemUser = &UserContext{UserID: "system"}

// UserContext identifies the actor behind a mutation. UserID is left untyped
// because guarded collections store either hex object ids or plain account
// names in their actor fields.
type UserContext struct {
	UserID interface{} `json:"userId" bson:"userId"`
}
