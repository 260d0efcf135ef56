package model

// Profile holds the optional personal details of an Account.
//
// Every Account has exactly one Profile, created in the same transaction.
// The optional fields are pointers: nil means "not set" and is stored as
// NULL. An empty string is never stored.
//
// Name mirrors the owner's username. The database keeps it in step through
// a foreign key with ON UPDATE CASCADE, and the username update re-syncs it
// explicitly as well.
type Profile struct {
	ID        string  `json:"id"        db:"id"`
	UserID    string  `json:"userId"    db:"user_id"`
	Name      string  `json:"name"      db:"name"`
	Avatar    *string `json:"avatar"    db:"avatar"`
	FirstName *string `json:"firstName" db:"first_name"`
	LastName  *string `json:"lastName"  db:"last_name"`
	Phone     *string `json:"phone"     db:"phone"`
	Bio       *string `json:"bio"       db:"bio"`
}

// ProfileField names an editable profile column.
type ProfileField string

const (
	ProfileAvatar    ProfileField = "avatar"
	ProfileFirstName ProfileField = "firstName"
	ProfileLastName  ProfileField = "lastName"
	ProfilePhone     ProfileField = "phone"
	ProfileBio       ProfileField = "bio"
)

// ProfileFields lists the editable fields in form order.
var ProfileFields = []ProfileField{
	ProfileAvatar, ProfileFirstName, ProfileLastName, ProfilePhone, ProfileBio,
}

// ParseProfileField converts a route parameter into a ProfileField.
func ParseProfileField(s string) (ProfileField, bool) {
	f := ProfileField(s)
	_, ok := f.Column()
	return f, ok
}

// Column returns the SQL column backing the field.
func (f ProfileField) Column() (string, bool) {
	switch f {
	case ProfileAvatar:
		return "avatar", true
	case ProfileFirstName:
		return "first_name", true
	case ProfileLastName:
		return "last_name", true
	case ProfilePhone:
		return "phone", true
	case ProfileBio:
		return "bio", true
	}
	return "", false
}

// Label is the human-readable name used in notifications, e.g. "First name".
func (f ProfileField) Label() string {
	switch f {
	case ProfileAvatar:
		return "Avatar"
	case ProfileFirstName:
		return "First name"
	case ProfileLastName:
		return "Last name"
	case ProfilePhone:
		return "Phone"
	case ProfileBio:
		return "Bio"
	}
	return string(f)
}

// Value returns the current value of field, or nil when unset.
func (p *Profile) Value(f ProfileField) *string {
	switch f {
	case ProfileAvatar:
		return p.Avatar
	case ProfileFirstName:
		return p.FirstName
	case ProfileLastName:
		return p.LastName
	case ProfilePhone:
		return p.Phone
	case ProfileBio:
		return p.Bio
	}
	return nil
}

// Set assigns v to field. Unknown fields are ignored.
func (p *Profile) Set(f ProfileField, v *string) {
	switch f {
	case ProfileAvatar:
		p.Avatar = v
	case ProfileFirstName:
		p.FirstName = v
	case ProfileLastName:
		p.LastName = v
	case ProfilePhone:
		p.Phone = v
	case ProfileBio:
		p.Bio = v
	}
}
