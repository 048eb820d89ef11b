package model

// SearchCard is one user search hit. AvatarURL is null when the user has
// no avatar.
type SearchCard struct {
	ID        string  `json:"id"`
	FullName  string  `json:"fullName"`
	Slug      string  `json:"slug"`
	AvatarURL *string `json:"avatarUrl"`
}
