package model

// FollowerDetail is the display snapshot a target keeps for each follower,
// so follower lists render without loading every follower's profile.
// It is written when the follow happens and is not refreshed when the
// follower later renames themselves.
type FollowerDetail struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Slug     string `json:"slug"`
}

// FollowResult is returned by follow and unfollow.
type FollowResult struct {
	IsFollowing    bool `json:"isFollowing"`
	FollowersCount int  `json:"followersCount"`
}

// FollowerCard is one row of a follower list.
type FollowerCard struct {
	UID        string `json:"uid"`
	FullName   string `json:"fullName"`
	Slug       string `json:"slug"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	Headline   string `json:"headline,omitempty"`
	Bio        string `json:"bio,omitempty"`

	// Always arrays, never null, so list views can iterate them directly.
	Interests []string `json:"interests"`
	Skills    []string `json:"skills"`
	Tags      []string `json:"tags"`
	Topics    []string `json:"topics"`
}
