package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	LanguageCode string    `json:"language_code"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserPublic struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:           u.ID,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
	}
}
