package sqlite

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
)

// document is the decode shape of a stored user document.
//
// LEGACY DATA:
// Documents were written by several generations of clients. Counters show
// up as numbers or numeric strings, or are missing with the value parked in
// stats.followers. Follower details were once an array. Display fields were
// sometimes objects. The custom types below accept every shape we have seen
// and never fail on a value they cannot use, and toUser turns the result
// into a clean model.User. Nothing is rewritten on read; a document is
// normalized in storage the next time something writes it.
type document struct {
	FirstName  flexString `json:"firstName"`
	LastName   flexString `json:"lastName"`
	FullName   flexString `json:"fullName"`
	Slug       flexString `json:"slug"`
	Login      flexString `json:"login"`
	Email      flexString `json:"email"`
	AvatarURL  flexString `json:"avatarUrl"`
	Headline   flexString `json:"headline"`
	Bio        flexString `json:"bio"`
	Occupation flexString `json:"occupation"`
	GitHubID   flexInt    `json:"githubId"`
	About      aboutDoc   `json:"about"`

	Interests stringList `json:"interests"`
	Skills    stringList `json:"skills"`
	Tags      stringList `json:"tags"`
	Topics    stringList `json:"topics"`

	Following        stringList `json:"following"`
	Followers        stringList `json:"followers"`
	FollowersCount   flexInt    `json:"followersCount"`
	Stats            stats      `json:"stats"`
	FollowersDetails detailList `json:"followersDetails"`
}

// consumedKeys are the document keys that map onto model.User. Everything
// else is carried in User.Extra. "stats" is consumed because its counter
// is folded into followersCount; "id" and the timestamps live in columns.
var consumedKeys = map[string]bool{
	model.FieldFirstName: true, model.FieldLastName: true, model.FieldFullName: true,
	model.FieldSlug: true, model.FieldLogin: true, model.FieldEmail: true,
	model.FieldAvatarURL: true, model.FieldHeadline: true, model.FieldBio: true,
	model.FieldOccupation: true, model.FieldGitHubID: true, model.FieldAbout: true,
	model.FieldInterests: true, model.FieldSkills: true, model.FieldTags: true,
	model.FieldTopics: true, model.FieldFollowing: true, model.FieldFollowers: true,
	model.FieldFollowersCount: true, model.FieldFollowersDetails: true,
	"stats": true, "id": true, "createdAt": true, "updatedAt": true,
}

// errUndecodable marks a stored document that is not a JSON object.
var errUndecodable = errors.New("document is not a JSON object")

// decodeUser builds a model.User from a stored document.
func decodeUser(id string, raw []byte) (*model.User, error) {
	var (
		d    document
		keys map[string]json.RawMessage
	)
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &keys); err != nil {
			return nil, fmt.Errorf("decoding user %s: %w: %w", id, errUndecodable, err)
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decoding user %s: %w: %w", id, errUndecodable, err)
		}
	}
	u := d.toUser(id)
	u.Extra = d.remainder(keys)
	return u, nil
}

// remainder returns the keys of a document that toUser did not take.
// A display field holding something other than a string is kept here, so
// the value is still served even though it is not a name or headline.
func (d *document) remainder(keys map[string]json.RawMessage) map[string]json.RawMessage {
	unread := map[string]*flexString{
		model.FieldFirstName: &d.FirstName, model.FieldLastName: &d.LastName,
		model.FieldFullName: &d.FullName, model.FieldSlug: &d.Slug,
		model.FieldLogin: &d.Login, model.FieldEmail: &d.Email,
		model.FieldAvatarURL: &d.AvatarURL, model.FieldHeadline: &d.Headline,
		model.FieldBio: &d.Bio, model.FieldOccupation: &d.Occupation,
	}

	var extra map[string]json.RawMessage
	for k, v := range keys {
		if consumedKeys[k] {
			f, display := unread[k]
			if !display || f.ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				continue
			}
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra
}

func (d *document) toUser(id string) *model.User {
	u := &model.User{
		ID:         id,
		FirstName:  d.FirstName.s,
		LastName:   d.LastName.s,
		FullName:   d.FullName.s,
		Slug:       strings.TrimSpace(d.Slug.s),
		Login:      d.Login.s,
		Email:      d.Email.s,
		AvatarURL:  d.AvatarURL.s,
		Headline:   d.Headline.s,
		Bio:        d.Bio.s,
		Occupation: d.Occupation.s,
		GitHubID:   d.GitHubID.n,
		About:      d.About.about,
		Interests:  d.Interests.orNil(),
		Skills:     d.Skills.orNil(),
		Tags:       d.Tags.orNil(),
		Topics:     d.Topics.orNil(),
		Following:  d.Following.without(id),
		Followers:  d.Followers.without(id),
	}

	switch {
	case d.FollowersCount.ok:
		u.FollowersCount = int(d.FollowersCount.n)
	case d.Stats.Followers.ok:
		u.FollowersCount = int(d.Stats.Followers.n)
	default:
		u.FollowersCount = len(u.Followers)
	}
	if u.FollowersCount < 0 {
		u.FollowersCount = 0
	}

	u.FollowersDetails = make(map[string]model.FollowerDetail, len(d.FollowersDetails))
	for k, v := range d.FollowersDetails {
		if k != id {
			u.FollowersDetails[k] = v
		}
	}
	return u
}

// flexString accepts a JSON string. Any other value leaves ok false and s
// empty instead of failing the whole document.
type flexString struct {
	s  string
	ok bool
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.s, f.ok = v.(string)
	return nil
}

// stats is the legacy home of the follower counter. Anything but an
// object is ignored.
type stats struct {
	Followers flexInt
}

func (st *stats) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if json.Unmarshal(b, &m) != nil {
		return nil
	}
	if raw, ok := m["followers"]; ok {
		return st.Followers.UnmarshalJSON(raw)
	}
	return nil
}

// aboutDoc reads the about section. Non-string entries read as "", and a
// value that is not an object reads as no section at all.
type aboutDoc struct {
	about *model.About
}

func (a *aboutDoc) UnmarshalJSON(b []byte) error {
	var raw struct {
		Title        flexString `json:"title"`
		Bio          flexString `json:"bio"`
		CurrentFocus flexString `json:"currentFocus"`
		BeyondWork   flexString `json:"beyondWork"`
	}
	if json.Unmarshal(b, &raw) != nil || !bytes.HasPrefix(bytes.TrimSpace(b), []byte("{")) {
		return nil
	}
	a.about = &model.About{
		Title:        raw.Title.s,
		Bio:          raw.Bio.s,
		CurrentFocus: raw.CurrentFocus.s,
		BeyondWork:   raw.BeyondWork.s,
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string. Anything else, null
// included, leaves ok false so callers can fall back to another source.
type flexInt struct {
	n  int64
	ok bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.n, f.ok = n, true
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		f.n, f.ok = int64(fl), true
	}
	return nil
}

// stringList is a set of strings stored as a JSON array: user ids, skills,
// tags. Non-string entries are dropped, values are trimmed, and duplicates
// collapse in first-seen order. A JSON object is read as a set of its keys.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	var raw []string
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			if s, ok := e.(string); ok {
				raw = append(raw, s)
			}
		}
	case map[string]any:
		for k := range x {
			raw = append(raw, k)
		}
		sort.Strings(raw)
	}

	seen := make(map[string]bool, len(raw))
	out := make(stringList, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	*l = out
	return nil
}

// orNil returns the values, or nil when there are none.
func (l stringList) orNil() []string {
	if len(l) == 0 {
		return nil
	}
	return []string(l)
}

// without returns the ids with self removed, never nil.
func (l stringList) without(self string) []string {
	out := make([]string, 0, len(l))
	for _, s := range l {
		if s != self {
			out = append(out, s)
		}
	}
	return out
}

// detailList reads followersDetails stored either as an object keyed by
// follower id or as an array of details. Array entries without an id are
// dropped; later duplicates win.
type detailList map[string]model.FollowerDetail

func (m *detailList) UnmarshalJSON(b []byte) error {
	out := detailList{}

	trimmed := bytes.TrimSpace(b)
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &byID); err != nil {
			return err
		}
		for k, raw := range byID {
			var d model.FollowerDetail
			if err := json.Unmarshal(raw, &d); err != nil {
				continue
			}
			if d.ID == "" {
				d.ID = k
			}
			out[d.ID] = d
		}
	case bytes.HasPrefix(trimmed, []byte("[")):
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		for _, raw := range list {
			var d model.FollowerDetail
			if err := json.Unmarshal(raw, &d); err != nil || d.ID == "" {
				continue
			}
			out[d.ID] = d
		}
	}

	*m = out
	return nil
}

// fieldName restricts writable document keys to identifiers, which keeps
// the JSON paths handed to json_set trivially safe.
var fieldName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// encodedField is one key of a partial update, ready for json_set.
type encodedField struct {
	path  string // "$.followers"
	value string // JSON text
}

// encodeFields validates and serializes a partial update. Keys are sorted
// so the generated SQL is stable.
func encodeFields(fields repository.Fields) ([]encodedField, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !fieldName.MatchString(k) {
			return nil, apperror.ValidationFailed(k, fmt.Sprintf("invalid field name %q", k))
		}
		if k == "id" {
			return nil, apperror.ValidationFailed(k, "field id is reserved")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]encodedField, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		// A nil set must land as [] rather than null.
		if ids, ok := v.([]string); ok && ids == nil {
			v = []string{}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding field %s: %w", k, err)
		}
		out = append(out, encodedField{path: "$." + k, value: string(b)})
	}
	return out, nil
}

// slugColumn returns the indexed form of a slug field value, and whether
// fields sets the slug at all.
func slugColumn(fields repository.Fields) (string, bool) {
	v, ok := fields[model.FieldSlug]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return strings.ToLower(strings.TrimSpace(s)), true
}
