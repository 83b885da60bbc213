package ticket

import "math/rand"

const (
	idLength   = 8
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewTicketID returns an 8-character identifier drawn uniformly from
// [A-Z0-9]. Generated client-side; collisions are handled by the store's
// bounded insert retry.
func NewTicketID() string {
	b := make([]byte, idLength)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(b)
}
