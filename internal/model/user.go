package model

// User is a graduate registering for a photo session.
//
// SDUID is the student number used by the campus single sign-on; it is unique
// and is how a returning user is recognised at login. ID is our own internal
// identifier (xid) and is what access tokens carry as their subject.
//
// OCCUPANCY:
// A user holds a seat of a Time exactly when SignedUp is true AND TimeID is
// set. Either one alone means no seat is held: a user may keep a TimeID around
// after signing out, and a user may be signed up before choosing a slot.
//
// Optional profile fields are pointers so that "never given" (NULL) stays
// distinguishable from an empty string.
type User struct {
	ID          string  `json:"id"                     db:"id"`
	SDUID       string  `json:"sdu_id"                 db:"sdu_id"`
	Name        string  `json:"name"                   db:"name"`
	SignedUp    bool    `json:"signed_up"              db:"signed_up"`
	PhoneNumber *string `json:"phone_number"           db:"phone_number"`
	QQ          *string `json:"qq"                     db:"qq"`
	Gender      *string `json:"gender"                 db:"gender"`
	MultiPerson *bool   `json:"multi_person"           db:"multi_person"`
	TimeID      *string `json:"time_id"                db:"time_id"`
	Time        *Time   `json:"time,omitempty"         db:"-"` // filled in by GET /user only
}

// Occupies reports whether the user currently holds a seat, and of which Time.
func (u *User) Occupies() (string, bool) {
	if u.SignedUp && u.TimeID != nil {
		return *u.TimeID, true
	}
	return "", false
}
