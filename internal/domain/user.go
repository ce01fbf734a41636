package domain

// Principal is the currently signed-in user as seen by the client. Its fields
// are copied onto every message the user composes.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func (p Principal) IsZero() bool {
	return p.ID == ""
}
