package sqlite

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/DiegoCico/Neuro/internal/model"
)

// Documents in the wild come in several shapes. Each case is a real shape
// we have to keep reading.
func TestDecodeUser_LegacyShapes(t *testing.T) {
	tests := []struct {
		name          string
		doc           string
		wantCount     int
		wantFollowers []string
		wantDetails   map[string]model.FollowerDetail
	}{
		{
			name:          "numeric counter",
			doc:           `{"followers":["a","b"],"followersCount":2}`,
			wantCount:     2,
			wantFollowers: []string{"a", "b"},
		},
		{
			name:          "counter as string",
			doc:           `{"followers":["a"],"followersCount":"7"}`,
			wantCount:     7,
			wantFollowers: []string{"a"},
		},
		{
			name:          "counter missing, stats present",
			doc:           `{"followers":["a"],"stats":{"followers":3}}`,
			wantCount:     3,
			wantFollowers: []string{"a"},
		},
		{
			name:          "counter garbage, stats as string",
			doc:           `{"followersCount":"lots","stats":{"followers":"4"}}`,
			wantCount:     4,
			wantFollowers: []string{},
		},
		{
			name:          "no counter anywhere",
			doc:           `{"followers":["a","b","c"]}`,
			wantCount:     3,
			wantFollowers: []string{"a", "b", "c"},
		},
		{
			name:          "negative counter floors at zero",
			doc:           `{"followersCount":-2}`,
			wantCount:     0,
			wantFollowers: []string{},
		},
		{
			name:          "messy follower set",
			doc:           `{"followers":[" a ","a","",null,5,"self","b"],"followersCount":2}`,
			wantCount:     2,
			wantFollowers: []string{"a", "b"},
		},
		{
			name:          "details as array",
			doc:           `{"followers":["a"],"followersDetails":[{"id":"a","fullName":"Ana","slug":"ana"},{"fullName":"no id"}]}`,
			wantCount:     1,
			wantFollowers: []string{"a"},
			wantDetails:   map[string]model.FollowerDetail{"a": {ID: "a", FullName: "Ana", Slug: "ana"}},
		},
		{
			name:          "details keyed without inner id",
			doc:           `{"followers":["a"],"followersDetails":{"a":{"fullName":"Ana"}}}`,
			wantCount:     1,
			wantFollowers: []string{"a"},
			wantDetails:   map[string]model.FollowerDetail{"a": {ID: "a", FullName: "Ana"}},
		},
		{
			name:          "empty document",
			doc:           `{}`,
			wantCount:     0,
			wantFollowers: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := decodeUser("self", []byte(tt.doc))
			if err != nil {
				t.Fatalf("decodeUser() error = %v", err)
			}
			if u.FollowersCount != tt.wantCount {
				t.Errorf("FollowersCount = %d, want %d", u.FollowersCount, tt.wantCount)
			}
			if !reflect.DeepEqual(u.Followers, tt.wantFollowers) {
				t.Errorf("Followers = %#v, want %#v", u.Followers, tt.wantFollowers)
			}
			wantDetails := tt.wantDetails
			if wantDetails == nil {
				wantDetails = map[string]model.FollowerDetail{}
			}
			if !reflect.DeepEqual(u.FollowersDetails, wantDetails) {
				t.Errorf("FollowersDetails = %#v, want %#v", u.FollowersDetails, wantDetails)
			}
		})
	}
}

func TestDecodeUser_FollowingAsObject(t *testing.T) {
	u, err := decodeUser("me", []byte(`{"following":{"b":true,"a":true,"me":true}}`))
	if err != nil {
		t.Fatalf("decodeUser() error = %v", err)
	}
	if !reflect.DeepEqual(u.Following, []string{"a", "b"}) {
		t.Errorf("Following = %v, want [a b]", u.Following)
	}
}

func TestDecodeUser_GitHubIDAsString(t *testing.T) {
	u, err := decodeUser("u", []byte(`{"githubId":"583231","slug":"  octo "}`))
	if err != nil {
		t.Fatalf("decodeUser() error = %v", err)
	}
	if u.GitHubID != 583231 {
		t.Errorf("GitHubID = %d, want 583231", u.GitHubID)
	}
	if u.Slug != "octo" {
		t.Errorf("Slug = %q, want %q", u.Slug, "octo")
	}
}

func TestDecodeUser_OddDisplayFields(t *testing.T) {
	doc := `{"firstName":"Zed","bio":{"text":"hi"},"headline":42,"occupation":null,"stats":7,"about":"hello"}`

	u, err := decodeUser("zed", []byte(doc))
	if err != nil {
		t.Fatalf("decodeUser() error = %v", err)
	}
	if u.FirstName != "Zed" || u.Bio != "" || u.Headline != "" || u.About != nil {
		t.Errorf("decodeUser() = %+v, want only the first name", u)
	}

	want := map[string]json.RawMessage{
		"bio":      json.RawMessage(`{"text":"hi"}`),
		"headline": json.RawMessage(`42`),
	}
	if !reflect.DeepEqual(u.Extra, want) {
		t.Errorf("Extra = %s, want bio and headline kept raw", u.Extra)
	}
}

func TestDecodeUser_KeepsUnknownFields(t *testing.T) {
	doc := `{"firstName":"Ana","skills":["go"," go ","sql"],"resumeUrl":"https://x","prefs":{"dark":true},` +
		`"about":{"title":"Eng","bio":7},"createdAt":"2020-01-01"}`

	u, err := decodeUser("ana", []byte(doc))
	if err != nil {
		t.Fatalf("decodeUser() error = %v", err)
	}
	if !reflect.DeepEqual(u.Skills, []string{"go", "sql"}) {
		t.Errorf("Skills = %v, want [go sql]", u.Skills)
	}
	if u.About == nil || u.About.Title != "Eng" || u.About.Bio != "" {
		t.Errorf("About = %+v, want title only", u.About)
	}
	if len(u.Extra) != 2 || u.Extra["resumeUrl"] == nil || u.Extra["prefs"] == nil {
		t.Errorf("Extra = %s, want resumeUrl and prefs", u.Extra)
	}

	out, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got["resumeUrl"] != "https://x" || got["firstName"] != "Ana" {
		t.Errorf("marshalled user = %s, want named and extra fields together", out)
	}
}

func TestDecodeUser_NotAnObject(t *testing.T) {
	for _, doc := range []string{`[1,2]`, `"ana"`, `not json`} {
		_, err := decodeUser("u", []byte(doc))
		if !errors.Is(err, errUndecodable) {
			t.Errorf("decodeUser(%s) error = %v, want errUndecodable", doc, err)
		}
	}
}

func TestEncodeFields_SortedAndNilSetsAsArrays(t *testing.T) {
	got, err := encodeFields(map[string]any{
		model.FieldFollowers:      []string(nil),
		model.FieldFollowersCount: 3,
		model.FieldFirstName:      "Ana",
	})
	if err != nil {
		t.Fatalf("encodeFields() error = %v", err)
	}

	want := []encodedField{
		{path: "$.firstName", value: `"Ana"`},
		{path: "$.followers", value: `[]`},
		{path: "$.followersCount", value: `3`},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("encodeFields() = %v, want %v", got, want)
	}
}
