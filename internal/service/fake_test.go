package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

var errFakeStore = errors.New("fake store unavailable")

// fakeUserRepo is an in-memory repository.UserRepository with versioned
// documents, so RunInTransaction behaves like the real optimistic store.
//
// interfere, when set, runs after the transaction body and before its
// commit check, once per attempt. It is how tests play a concurrent writer.
type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[string]*model.User
	versions map[string]int

	maxAttempts int
	interfere   func(attempt int)

	findErr       error
	scanErr       error
	setSlugsErrOn int // fail the n-th SetSlugs call (1-based); 0 never fails

	scanned      int
	setSlugCalls int
	setSlugsCall int
	batchSizes   []int
	txAttempts   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:       make(map[string]*model.User),
		versions:    make(map[string]int),
		maxAttempts: 5,
	}
}

// put stores u directly, bypassing every counter.
func (f *fakeUserRepo) put(u model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = cloneForTest(&u)
	f.versions[u.ID]++
}

// get returns a copy of the stored user, or nil.
func (f *fakeUserRepo) get(id string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil
	}
	return cloneForTest(u)
}

func (f *fakeUserRepo) GetUser(ctx context.Context, id string) (*model.User, error) {
	if u := f.get(id); u != nil {
		return u, nil
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUserRepo) GetUsers(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	for _, id := range ids {
		if u := f.get(id); u != nil {
			out[id] = u
		}
	}
	return out, nil
}

func (f *fakeUserRepo) FindBySlug(ctx context.Context, s string) (*model.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range slices.Sorted(maps.Keys(f.users)) {
		u := f.users[id]
		if strings.ToLower(strings.TrimSpace(u.Slug)) == s {
			return cloneForTest(u), nil
		}
	}
	return nil, apperror.NotFound("user", s)
}

func (f *fakeUserRepo) ScanUsers(ctx context.Context, opts repository.ScanOptions) (*repository.Page, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 200
	}

	page := &repository.Page{}
	for _, id := range slices.Sorted(maps.Keys(f.users)) {
		if id <= opts.After {
			continue
		}
		u := f.users[id]
		if opts.MissingSlug && strings.TrimSpace(u.Slug) != "" {
			continue
		}
		if len(page.Users) == limit {
			page.Cursor = page.Users[len(page.Users)-1].ID
			break
		}
		page.Users = append(page.Users, *cloneForTest(u))
		f.scanned++
	}
	return page, nil
}

func (f *fakeUserRepo) SetSlug(ctx context.Context, id, s string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setSlugCalls++
	u, ok := f.users[id]
	if !ok {
		return false, apperror.NotFound("user", id)
	}
	if u.Slug != "" {
		return false, nil
	}
	u.Slug = s
	f.versions[id]++
	return true, nil
}

func (f *fakeUserRepo) SetSlugs(ctx context.Context, batch []repository.SlugAssignment) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setSlugsCall++
	f.batchSizes = append(f.batchSizes, len(batch))
	if f.setSlugsCall == f.setSlugsErrOn {
		return 0, errFakeStore
	}
	n := 0
	for _, a := range batch {
		if u, ok := f.users[a.ID]; ok && u.Slug == "" {
			u.Slug = a.Slug
			f.versions[a.ID]++
			n++
		}
	}
	return n, nil
}

func (f *fakeUserRepo) MergeUser(ctx context.Context, id string, fields repository.Fields) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		u = &model.User{ID: id}
		f.users[id] = u
	}
	if err := applyFields(u, fields); err != nil {
		return nil, err
	}
	f.versions[id]++
	return cloneForTest(u), nil
}

type fakeTx struct {
	repo   *fakeUserRepo
	reads  map[string]int
	writes map[string]repository.Fields
}

func (t *fakeTx) GetUser(ctx context.Context, id string) (*model.User, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	u, ok := t.repo.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	t.reads[id] = t.repo.versions[id]
	return cloneForTest(u), nil
}

func (t *fakeTx) Update(id string, fields repository.Fields) error {
	if _, ok := t.reads[id]; !ok {
		return errors.New("update before read")
	}
	if t.writes[id] == nil {
		t.writes[id] = repository.Fields{}
	}
	maps.Copy(t.writes[id], fields)
	return nil
}

func (f *fakeUserRepo) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.UserTx) error) error {
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		f.txAttempts++
		tx := &fakeTx{repo: f, reads: map[string]int{}, writes: map[string]repository.Fields{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if f.interfere != nil {
			f.interfere(attempt)
		}

		f.mu.Lock()
		stale := false
		for id, v := range tx.reads {
			if f.versions[id] != v {
				stale = true
			}
		}
		if !stale {
			for id, fields := range tx.writes {
				if err := applyFields(f.users[id], fields); err != nil {
					f.mu.Unlock()
					return err
				}
				f.versions[id]++
			}
		}
		f.mu.Unlock()

		if !stale {
			return nil
		}
	}
	return apperror.Conflict("transaction", "users")
}

// applyFields merges the fields the services write into u.
func applyFields(u *model.User, fields repository.Fields) error {
	for k, v := range fields {
		switch k {
		case model.FieldFirstName:
			u.FirstName = v.(string)
		case model.FieldLastName:
			u.LastName = v.(string)
		case model.FieldFullName:
			u.FullName = v.(string)
		case model.FieldSlug:
			u.Slug = v.(string)
		case model.FieldLogin:
			u.Login = v.(string)
		case model.FieldEmail:
			u.Email = v.(string)
		case model.FieldAvatarURL:
			u.AvatarURL = v.(string)
		case model.FieldHeadline:
			u.Headline = v.(string)
		case model.FieldBio:
			u.Bio = v.(string)
		case model.FieldOccupation:
			u.Occupation = v.(string)
		case model.FieldGitHubID:
			u.GitHubID = v.(int64)
		case model.FieldFollowing:
			u.Following = slices.Clone(v.([]string))
		case model.FieldFollowers:
			u.Followers = slices.Clone(v.([]string))
		case model.FieldFollowersCount:
			u.FollowersCount = v.(int)
		case model.FieldFollowersDetails:
			u.FollowersDetails = maps.Clone(v.(map[string]model.FollowerDetail))
		case model.FieldAbout:
			about := v.(model.About)
			u.About = &about
		case model.FieldInterests:
			u.Interests = slices.Clone(v.([]string))
		case model.FieldSkills:
			u.Skills = slices.Clone(v.([]string))
		case model.FieldTags:
			u.Tags = slices.Clone(v.([]string))
		case model.FieldTopics:
			u.Topics = slices.Clone(v.([]string))
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if u.Extra == nil {
				u.Extra = make(map[string]json.RawMessage)
			}
			u.Extra[k] = raw
		}
	}
	return nil
}

func cloneForTest(u *model.User) *model.User {
	c := *u
	c.Following = slices.Clone(u.Following)
	c.Followers = slices.Clone(u.Followers)
	c.FollowersDetails = maps.Clone(u.FollowersDetails)
	c.Extra = maps.Clone(u.Extra)
	return &c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(repo repository.UserRepository, scanLimit int) *IdentityResolver {
	return NewIdentityResolver(repo, scanLimit, discardLogger())
}

func newTestFollowService(repo repository.UserRepository) *FollowService {
	return NewFollowService(repo, newTestResolver(repo, 0), discardLogger())
}

func assertAppError(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want errors.Is(%v)", err, want)
	}
}
