package domain

// Session is the authenticated identity of the current visitor, extracted
// from the identity provider's token claims.
type Session struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}
