package models

// User is a course participant. The password is never held here; it only
// travels as an argument to the store, which persists a hash of it.
type User struct {
	ID        int64  `json:"id" db:"UserId"`
	Username  string `json:"username" db:"Username" validate:"required"`
	Firstname string `json:"firstname" db:"Firstname"`
	Lastname  string `json:"lastname" db:"Lastname"`
}

func NewUser(username, firstname, lastname string) User {
	return User{
		ID:        UnassignedID,
		Username:  username,
		Firstname: firstname,
		Lastname:  lastname,
	}
}
