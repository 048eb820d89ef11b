// Package model defines the data structures used throughout the application.
package model

import (
	"encoding/json"
	"time"
)

// Field names as they appear in stored user documents and JSON payloads.
// Partial updates (repository.Fields) are keyed by these.
const (
	FieldFirstName        = "firstName"
	FieldLastName         = "lastName"
	FieldFullName         = "fullName"
	FieldSlug             = "slug"
	FieldLogin            = "login"
	FieldEmail            = "email"
	FieldAvatarURL        = "avatarUrl"
	FieldHeadline         = "headline"
	FieldBio              = "bio"
	FieldOccupation       = "occupation"
	FieldGitHubID         = "githubId"
	FieldAbout            = "about"
	FieldInterests        = "interests"
	FieldSkills           = "skills"
	FieldTags             = "tags"
	FieldTopics           = "topics"
	FieldFollowing        = "following"
	FieldFollowers        = "followers"
	FieldFollowersCount   = "followersCount"
	FieldFollowersDetails = "followersDetails"
)

// GraphFields are owned by the follow graph. Profile upserts may not write them.
var GraphFields = []string{
	FieldFollowing,
	FieldFollowers,
	FieldFollowersCount,
	FieldFollowersDetails,
}

// User is a profile document.
//
// The identity fields (ID, names, Slug) are written by sign-in and profile
// upserts. The graph fields (Following through FollowersDetails) are only
// ever changed by the follow service, inside a store transaction, so that
// they stay consistent with each other:
//
//   - target ∈ viewer.Following  ⇔  viewer ∈ target.Followers
//   - FollowersCount == len(Followers)
//   - FollowersDetails has exactly one entry per follower
//
// WHY IS SLUG NOT UNIQUE?
// Slugs are derived from display names, and two people can share a name.
// Resolution returns the first match; see DESIGN.md for the trade-off.
type User struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	FullName   string `json:"fullName,omitempty"`
	Slug       string `json:"slug,omitempty"`
	Login      string `json:"login,omitempty"`
	Email      string `json:"email,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	Headline   string `json:"headline,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	GitHubID   int64  `json:"githubId,omitempty"`
	About      *About `json:"about,omitempty"`

	Interests []string `json:"interests,omitempty"`
	Skills    []string `json:"skills,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Topics    []string `json:"topics,omitempty"`

	Following        []string                  `json:"following"`
	Followers        []string                  `json:"followers"`
	FollowersCount   int                       `json:"followersCount"`
	FollowersDetails map[string]FollowerDetail `json:"followersDetails"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Extra holds stored document keys the fields above do not name, as
	// raw JSON. They are written back out next to the named fields.
	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON writes the named fields plus Extra. A key in Extra never
// replaces a named field.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	b, err := json.Marshal(plain(u))
	if err != nil {
		return nil, err
	}
	return mergeObject(b, u.Extra, false)
}

// IsFollowing reports whether u follows id.
func (u *User) IsFollowing(id string) bool {
	return contains(u.Following, id)
}

// HasFollower reports whether id follows u.
func (u *User) HasFollower(id string) bool {
	return contains(u.Followers, id)
}

func contains(set []string, id string) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}
