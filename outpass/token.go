/*
token.go - QR token issuance

PURPOSE:
  Issues the opaque string encoded into the QR code shown at checkpoints.
  The token is the sole verification key: checkpoint scans look the pass
  up by token, never by id.

TOKEN SHAPE:
  <passID>-<studentRef>-<unixMillis>-<randomHex>

  The pass id and student key make the token traceable in logs; the
  millisecond timestamp binds it to an issuance epoch; the 16 random bytes
  (crypto/rand) make it unguessable. Uniqueness is additionally enforced
  by a unique index on the passes.token column, so even an astronomically
  unlikely collision surfaces as a conflict rather than silent reuse.
*/
package outpass

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenIssuer produces a fresh token bound to one pass and one
// regeneration epoch. Implementations must never return the same token
// twice, across passes or across regenerations of the same pass.
type TokenIssuer interface {
	Issue(passID, studentRef string) (string, error)
}

// QRTokenIssuer is the production issuer.
type QRTokenIssuer struct {
	Clock Clock
}

func NewQRTokenIssuer(clock Clock) *QRTokenIssuer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &QRTokenIssuer{Clock: clock}
}

func (i *QRTokenIssuer) Issue(passID, studentRef string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token entropy unavailable: %w", err)
	}
	return fmt.Sprintf("%s-%s-%d-%s", passID, studentRef, i.Clock.Now().UnixMilli(), hex.EncodeToString(buf)), nil
}
