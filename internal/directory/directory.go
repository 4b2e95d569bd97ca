// Package directory holds the set of known users.
package directory

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"schedle/internal/models"

	"gopkg.in/yaml.v3"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrEmailTaken   = errors.New("email is already registered")
	ErrUserNotFound = errors.New("user not found")
)

// Directory is the authoritative source of user profiles. It is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	users   map[string]models.User
	byEmail map[string]string
	order   []string
}

// New creates a directory seeded with users. Later duplicates are ignored.
func New(users ...models.User) *Directory {
	d := &Directory{
		users:   make(map[string]models.User),
		byEmail: make(map[string]string),
	}
	for _, u := range users {
		_ = d.Add(u)
	}
	return d
}

// Generate returns the demo users user1..userN.
func Generate(n int) []models.User {
	users := make([]models.User, 0, n)
	for i := 1; i <= n; i++ {
		users = append(users, models.User{
			ID:     fmt.Sprintf("user%d", i),
			Name:   fmt.Sprintf("User %d", i),
			Email:  fmt.Sprintf("user%d@example.com", i),
			Avatar: fmt.Sprintf("https://i.pravatar.cc/150?img=%d", i),
		})
	}
	return users
}

// seedFile is the layout of a YAML seed file.
type seedFile struct {
	Users []models.User `yaml:"users"`
}

// LoadSeedFile reads users from a YAML file of the form
//
//	users:
//	  - id: alice
//	    name: Alice
//	    email: alice@example.com
func LoadSeedFile(path string) ([]models.User, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for i, u := range seed.Users {
		if u.ID == "" || u.Email == "" {
			return nil, fmt.Errorf("seed file %s: user #%d needs an id and an email", path, i+1)
		}
	}
	return seed.Users, nil
}

// Get returns the user with the given id.
func (d *Directory) Get(id string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	return u, ok
}

// Exists reports whether id is known.
func (d *Directory) Exists(id string) bool {
	_, ok := d.Get(id)
	return ok
}

// GetByEmail looks a user up by email, ignoring case.
func (d *Directory) GetByEmail(email string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return models.User{}, false
	}
	return d.users[id], true
}

// All returns every user in insertion order.
func (d *Directory) All() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.User, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.users[id])
	}
	return out
}

// Search returns users whose name or email contains query, ignoring case.
// excludeID is left out of the result. An empty query matches nobody.
func (d *Directory) Search(query, excludeID string) []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []models.User{}
	for _, id := range d.order {
		if id == excludeID {
			continue
		}
		if u := d.users[id]; u.Matches(query) {
			out = append(out, u)
		}
	}
	return out
}

// Add registers a new user.
func (d *Directory) Add(u models.User) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[u.ID]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
	}
	email := normalizeEmail(u.Email)
	if email != "" {
		if _, ok := d.byEmail[email]; ok {
			return fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
		}
		d.byEmail[email] = u.ID
	}
	d.users[u.ID] = u
	d.order = append(d.order, u.ID)
	return nil
}

// Update replaces the profile of an existing user. The email stays unique.
func (d *Directory) Update(u models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	old, ok := d.users[u.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, u.ID)
	}
	oldEmail, newEmail := normalizeEmail(old.Email), normalizeEmail(u.Email)
	if newEmail != oldEmail {
		if newEmail != "" {
			if _, taken := d.byEmail[newEmail]; taken {
				return fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
			}
			d.byEmail[newEmail] = u.ID
		}
		delete(d.byEmail, oldEmail)
	}
	d.users[u.ID] = u
	return nil
}

// IDs returns every user id, sorted.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
