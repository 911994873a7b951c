package models

type ID int64

// User is an id/name pair. Both fields are set once by NewUser.
type User struct {
	id   ID
	name string
}

func NewUser(id ID, name string) *User {
	return &User{
		id:   id,
		name: name,
	}
}

func (u *User) ID() ID {
	return u.id
}

func (u *User) Name() string {
	return u.name
}

// TellName renders "My name is {name}.". The id does not take part.
func (u *User) TellName() string {
	return "My name is " + u.name + "."
}

// Equal reports whether both users hold the same id and name.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.id == other.id && u.name == other.name
}
