package model

import "encoding/json"

// Profile is the public view of a user, as served by the profile endpoints.
// IsFollowing is only meaningful when a viewer is known.
type Profile struct {
	*User
	IsFollowing bool `json:"isFollowing"`
}

// MarshalJSON writes the user's document with isFollowing added.
func (p Profile) MarshalJSON() ([]byte, error) {
	base := []byte("{}")
	if p.User != nil {
		b, err := p.User.MarshalJSON()
		if err != nil {
			return nil, err
		}
		base = b
	}
	flag, err := json.Marshal(p.IsFollowing)
	if err != nil {
		return nil, err
	}
	return mergeObject(base, map[string]json.RawMessage{"isFollowing": flag}, true)
}

// About is the free-text "about me" section of a profile.
type About struct {
	Title        string `json:"title"`
	Bio          string `json:"bio"`
	CurrentFocus string `json:"currentFocus"`
	BeyondWork   string `json:"beyondWork"`
}

// mergeObject adds fields to the JSON object obj. Keys already in obj are
// kept unless override is set.
func mergeObject(obj []byte, fields map[string]json.RawMessage, override bool) ([]byte, error) {
	if len(fields) == 0 {
		return obj, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if _, taken := m[k]; taken && !override {
			continue
		}
		m[k] = v
	}
	return json.Marshal(m)
}
