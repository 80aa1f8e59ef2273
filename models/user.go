package models

// User is an account known to the identity store.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Realname     string `json:"realname"`
	PasswordHash string `json:"-"`
	CreatedAt    int64  `json:"createdAt"`
}

// UserSummary is the public projection of a user attached to disclosed peers.
type UserSummary struct {
	Username string `json:"username"`
	Realname string `json:"realname"`
}

// Summary projects u to its disclosable fields.
func (u User) Summary() UserSummary {
	return UserSummary{Username: u.Username, Realname: u.Realname}
}
