package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared by every request type; validator caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// errValidation marks a malformed request body or parameter
var errValidation = errors.New("validation failed")

const maxBodyBytes = 1 << 20

// CreateSessionRequest opens a session. SessionID is generated when empty;
// Content seeds the document, otherwise the latest snapshot of the file is used.
type CreateSessionRequest struct {
	SessionID        string  `json:"session_id" validate:"omitempty,max=64,printascii,excludesall=/"`
	FileID           string  `json:"file_id" validate:"required,max=64"`
	Content          *string `json:"content,omitempty"`
	ExpiresInSeconds *int64  `json:"expires_in_seconds,omitempty" validate:"omitempty,gte=0"`
}

// JoinSessionRequest adds a participant
type JoinSessionRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// CursorRequest moves a participant's cursor
type CursorRequest struct {
	Line           int  `json:"line" validate:"gte=0"`
	Column         int  `json:"column" validate:"gte=0"`
	SelectionStart *int `json:"selection_start,omitempty" validate:"omitempty,gte=0"`
	SelectionEnd   *int `json:"selection_end,omitempty" validate:"omitempty,gte=0"`
}

func (c *CursorRequest) check() error {
	if (c.SelectionStart == nil) != (c.SelectionEnd == nil) {
		return fmt.Errorf("%w: selection_start and selection_end must be set together", errValidation)
	}
	if c.SelectionStart != nil && *c.SelectionEnd < *c.SelectionStart {
		return fmt.Errorf("%w: selection_end is before selection_start", errValidation)
	}
	return nil
}

// decodeJSON reads a size-limited JSON body into dst and validates it
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", errValidation, describeValidation(err))
	}
	return nil
}

// describeValidation turns validator errors into "field: rule" pairs
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}
