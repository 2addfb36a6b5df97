package domain

import "time"

type User struct {
	ID          int32     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	CreatedOn   time.Time `json:"created_on"`

	PasswordHash string `json:"-"`
}
