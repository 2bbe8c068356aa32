package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/graduation-photo/internal/apperror"
)

// MERGE-PATCH SEMANTICS:
// A PUT /user body only lists the fields the caller wants to change. A field
// that is absent keeps its stored value, a field set to null clears it, and a
// field with a value replaces it. Go's zero values cannot tell those three
// cases apart, so every patchable field is an Optional.
//
// Each entity gets its own patch struct that enumerates exactly the fields a
// caller may change. Anything else in the body (capacity, id, sdu_id, ...) is
// rejected when decoding, because DecodePatch disallows unknown fields.

// Optional is one field of a merge-patch.
//
// Set reports whether the key was present in the body. Valid reports whether
// it carried a non-null value; when Valid is false and Set is true the field
// is being cleared.
type Optional[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Valid: true, Value: v}
}

// Null returns a present Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// UnmarshalJSON is only called by encoding/json when the key is present,
// which is how Set gets recorded. A literal null arrives here too.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Valid = false
		var zero T
		o.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// ptr converts a present Optional into the pointer form stored on the model.
func (o Optional[T]) ptr() *T {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// DecodePatch decodes a JSON merge-patch body into dst, rejecting unknown
// fields and type mismatches as validation errors.
func DecodePatch(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return apperror.ValidationFailed(typeErr.Field,
				fmt.Sprintf("%s has the wrong type", typeErr.Field))
		}
		if field, ok := unknownField(err); ok {
			return apperror.ValidationFailed(field,
				fmt.Sprintf("field %s cannot be changed", field))
		}
		return apperror.ValidationFailed("", "malformed JSON body")
	}
	return nil
}

// unknownField extracts the field name from encoding/json's
// `json: unknown field "x"` error, which has no exported type.
func unknownField(err error) (string, bool) {
	const prefix = `json: unknown field "`
	msg := err.Error()
	if !strings.HasPrefix(msg, prefix) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(msg, prefix), `"`), true
}

// Profile field limits.
const (
	MaxPhoneLength  = 32
	MaxQQLength     = 16
	MaxGenderLength = 16
	MaxNameLength   = 100
)

// UserPatch lists the user fields a user may change about themselves.
// Name and SDUID come from the campus identity provider and are not here.
type UserPatch struct {
	SignedUp    Optional[bool]   `json:"signed_up"`
	PhoneNumber Optional[string] `json:"phone_number"`
	QQ          Optional[string] `json:"qq"`
	Gender      Optional[string] `json:"gender"`
	MultiPerson Optional[bool]   `json:"multi_person"`
	TimeID      Optional[string] `json:"time_id"`
}

// Validate checks the patch without touching any user.
func (p UserPatch) Validate() error {
	if p.SignedUp.Set && !p.SignedUp.Valid {
		return apperror.ValidationFailed("signed_up", "signed_up must not be null")
	}
	if p.TimeID.Valid && strings.TrimSpace(p.TimeID.Value) == "" {
		return apperror.ValidationFailed("time_id", "time_id must not be empty; use null to clear it")
	}
	if err := checkLength("phone_number", p.PhoneNumber, MaxPhoneLength); err != nil {
		return err
	}
	if err := checkLength("qq", p.QQ, MaxQQLength); err != nil {
		return err
	}
	return checkLength("gender", p.Gender, MaxGenderLength)
}

// Apply validates the patch and copies every present field onto u.
func (p UserPatch) Apply(u *User) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.SignedUp.Set {
		u.SignedUp = p.SignedUp.Value
	}
	if p.PhoneNumber.Set {
		u.PhoneNumber = p.PhoneNumber.ptr()
	}
	if p.QQ.Set {
		u.QQ = p.QQ.ptr()
	}
	if p.Gender.Set {
		u.Gender = p.Gender.ptr()
	}
	if p.MultiPerson.Set {
		u.MultiPerson = p.MultiPerson.ptr()
	}
	if p.TimeID.Set {
		u.TimeID = p.TimeID.ptr()
	}
	return nil
}

func checkLength(field string, o Optional[string], max int) error {
	if o.Valid && len(o.Value) > max {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", field, max))
	}
	return nil
}

// CampusPatch is the administrative edit of a campus.
type CampusPatch struct {
	Name Optional[string] `json:"name"`
}

// Apply validates the patch and copies the present fields onto c.
func (p CampusPatch) Apply(c *Campus) error {
	if !p.Name.Set {
		return nil
	}
	name := strings.TrimSpace(p.Name.Value)
	if !p.Name.Valid || name == "" {
		return apperror.ValidationFailed("name", "campus name is required")
	}
	if len(name) > MaxNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("campus name must be %d characters or less", MaxNameLength))
	}
	c.Name = name
	return nil
}

// TimePatch edits the schedule of a slot. Capacity is deliberately absent:
// it moves only through bookings and the capacity adjustment endpoint.
type TimePatch struct {
	Start Optional[time.Time] `json:"start"`
	End   Optional[time.Time] `json:"end"`
}

// Apply validates the patch and copies the present fields onto t.
func (p TimePatch) Apply(t *Time) error {
	if p.Start.Set && !p.Start.Valid {
		return apperror.ValidationFailed("start", "start must not be null")
	}
	if p.End.Set && !p.End.Valid {
		return apperror.ValidationFailed("end", "end must not be null")
	}
	start, end := t.Start, t.End
	if p.Start.Set {
		start = p.Start.Value
	}
	if p.End.Set {
		end = p.End.Value
	}
	if !end.After(start) {
		return apperror.ValidationFailed("end", "end must be after start")
	}
	t.Start, t.End = start, end
	return nil
}
