package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Experience is one entry of a user's work history.
//
// Dates are "YYYY-MM". A current position has no EndDate.
type Experience struct {
	ID          string   `json:"id"`
	UserID      string   `json:"-"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Current     bool     `json:"current"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarshalJSON also writes skills as "technologies", the key older clients read.
func (e Experience) MarshalJSON() ([]byte, error) {
	type plain Experience
	skills := e.Skills
	if skills == nil {
		skills = []string{}
	}
	p := plain(e)
	p.Skills = skills
	return json.Marshal(struct {
		plain
		Technologies []string `json:"technologies"`
	}{p, skills})
}

// ExperienceInput is the body of an experience create or update.
// Technologies is the older name for Skills and is only read when Skills
// is empty.
type ExperienceInput struct {
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	Location     string    `json:"location"`
	StartDate    string    `json:"startDate"`
	EndDate      string    `json:"endDate"`
	Current      bool      `json:"current"`
	Description  string    `json:"description"`
	Skills       SkillList `json:"skills"`
	Technologies SkillList `json:"technologies"`
}

// SkillList decodes either a JSON array of strings or one comma separated
// string. Non-string array entries are dropped, and any other value reads
// as no skills.
type SkillList []string

func (l *SkillList) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		*l = strings.Split(v, ",")
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		*l = out
	default:
		*l = nil
	}
	return nil
}
