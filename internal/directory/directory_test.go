package directory

import (
	"os"
	"path/filepath"
	"testing"

	"schedle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	users := Generate(10)
	require.Len(t, users, 10)
	assert.Equal(t, models.User{
		ID:     "user3",
		Name:   "User 3",
		Email:  "user3@example.com",
		Avatar: "https://i.pravatar.cc/150?img=3",
	}, users[2])
}

func TestSearch(t *testing.T) {
	d := New(Generate(10)...)

	tests := []struct {
		name      string
		query     string
		excludeID string
		want      []string
	}{
		{name: "empty query", query: "", want: []string{}},
		{name: "blank query", query: "   ", want: []string{}},
		{name: "name case insensitive", query: "USER 1", excludeID: "user2", want: []string{"user1", "user10"}},
		{name: "email substring", query: "user7@", excludeID: "user1", want: []string{"user7"}},
		{name: "excludes caller", query: "user1@", excludeID: "user1", want: []string{}},
		{name: "no match", query: "nobody", excludeID: "user1", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, u := range d.Search(tt.query, tt.excludeID) {
				got = append(got, u.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddAndUpdate(t *testing.T) {
	d := New(Generate(2)...)

	err := d.Add(models.User{ID: "user1", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrUserExists)

	err = d.Add(models.User{ID: "user9", Email: "USER1@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	require.NoError(t, d.Add(models.User{ID: "alice", Name: "Alice", Email: "alice@example.com"}))
	got, ok := d.GetByEmail("Alice@Example.com")
	require.True(t, ok)
	assert.Equal(t, "alice", got.ID)

	err = d.Update(models.User{ID: "alice", Name: "Alice", Email: "user2@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	require.NoError(t, d.Update(models.User{ID: "alice", Name: "Alice B", Email: "ab@example.com"}))
	_, ok = d.GetByEmail("alice@example.com")
	assert.False(t, ok)
	got, ok = d.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "Alice B", got.Name)

	assert.ErrorIs(t, d.Update(models.User{ID: "ghost"}), ErrUserNotFound)
	assert.Len(t, d.All(), 3)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	content := "users:\n  - id: alice\n    name: Alice\n    email: alice@example.com\n  - id: bob\n    name: Bob\n    email: bob@example.com\n    avatar: https://example.com/bob.png\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	users, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[1].ID)
	assert.Equal(t, "https://example.com/bob.png", users[1].Avatar)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("users:\n  - name: nobody\n"), 0o644))
	_, err = LoadSeedFile(bad)
	assert.Error(t, err)
}
