package users

import (
	"context"

	"github.com/pkg/errors"
)

// MockUserRepository is an in memory UserRepositoryInterface for tests
type MockUserRepository struct {
	Users []*User
}

// Add adds a user
func (r *MockUserRepository) Add(_ context.Context, user *User) error {
	r.Users = append(r.Users, user)
	return nil
}

// FindByID finds a user by ID
func (r *MockUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	for _, user := range r.Users {
		if user.ID.Hex() == id {
			return user, nil
		}
	}

	return nil, errors.New("user not found")
}

// FindByEmail finds a user by Email
func (r *MockUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, user := range r.Users {
		if user.Email == email {
			return user, nil
		}
	}

	return nil, errors.New("user not found")
}

// Update updates a user
func (r *MockUserRepository) Update(_ context.Context, user *User) error {
	for i, existing := range r.Users {
		if existing.ID == user.ID {
			r.Users[i] = user
			return nil
		}
	}

	return errors.New("user not found")
}

// Remove deletes a user
func (r *MockUserRepository) Remove(_ context.Context, id string) error {
	for i, user := range r.Users {
		if user.ID.Hex() == id {
			r.Users = append(r.Users[:i], r.Users[i+1:]...)
			return nil
		}
	}

	return errors.New("user not found")
}
