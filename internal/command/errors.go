package command

import (
	"encoding/json"

	"github.com/koustreak/sqlgate/internal/errs"
)

// ErrorType is the wire discriminator of an Error.
type ErrorType string

const (
	// TypeGeneral covers every failure except a missing connection.
	TypeGeneral ErrorType = "GEN"
	// TypeConnection reports that the session has no connection.
	TypeConnection ErrorType = "CONN"
)

// NoConnectionDescription is the fixed description of every CONN error.
const NoConnectionDescription = "No connection has previously been established"

// Error is the payload returned to the host for a failed command.
type Error struct {
	Type        ErrorType
	Description string
	// Comment is only sent for CONN errors; nil is sent as null.
	Comment *string

	// Kind is the internal classification, kept for status mapping. It is
	// not part of the wire payload.
	Kind errs.ErrKind
}

func (e *Error) Error() string {
	return string(e.Type) + ": " + e.Description
}

// MarshalJSON renders {"type","description"} for GEN and
// {"type","description","comment"} for CONN.
func (e *Error) MarshalJSON() ([]byte, error) {
	if e.Type == TypeConnection {
		return json.Marshal(struct {
			Type        ErrorType `json:"type"`
			Description string    `json:"description"`
			Comment     *string   `json:"comment"`
		}{e.Type, e.Description, e.Comment})
	}
	return json.Marshal(struct {
		Type        ErrorType `json:"type"`
		Description string    `json:"description"`
	}{e.Type, e.Description})
}

// FromError converts err into a wire error. NoActiveConnection becomes
// CONN carrying comment (empty means null); anything else becomes GEN with
// the error's display text. A nil err returns nil.
func FromError(err error, comment string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}

	kind := errs.KindOf(err)
	if kind == errs.ErrKindNoActiveConnection {
		e := &Error{Type: TypeConnection, Description: NoConnectionDescription, Kind: kind}
		if comment != "" {
			e.Comment = &comment
		}
		return e
	}
	return &Error{Type: TypeGeneral, Description: errs.Message(err), Kind: kind}
}
