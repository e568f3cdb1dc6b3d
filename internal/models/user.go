package models

// User is the caller identity passed explicitly into profile resolution
type User struct {
	ID    string
	Name  string
	Email string
}
