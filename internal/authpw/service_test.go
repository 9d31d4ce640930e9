package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/redoswald/todopus/internal/store"
)

type fakeUserStore struct {
	byEmail map[string]store.User
	byID    map[string]store.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: map[string]store.User{}, byID: map[string]store.User{}}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserStore) CreateUser(_ context.Context, user store.User) error {
	f.byEmail[user.Email] = user
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUserStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	u, ok := f.byID[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	f.byID[userID] = u
	f.byEmail[u.Email] = u
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "  Ada@Example.com ",
		Password:    "correct horse",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "correct horse" || user.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}

	got, err := svc.SignIn(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("SignIn() user = %q, want %q", got.ID, user.ID)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	req := SignUpRequest{Email: "ada@example.com", Password: "correct horse", DisplayName: "Ada"}
	if _, err := svc.SignUp(ctx, req); err != nil {
		t.Fatalf("first SignUp() error = %v", err)
	}
	if _, err := svc.SignUp(ctx, req); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("second SignUp() error = %v, want ErrEmailTaken", err)
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := NewService(newFakeUserStore())

	_, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@b.c", Password: "short", DisplayName: "A"})
	if err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestSignInWrongPassword(t *testing.T) {
	fs := newFakeUserStore()
	hash, _ := bcrypt.GenerateFromPassword([]byte("right password"), bcrypt.MinCost)
	_ = fs.CreateUser(context.Background(), store.User{ID: "usr_1", Email: "ada@example.com", PasswordHash: string(hash)})
	svc := NewService(fs)

	if _, err := svc.SignIn(context.Background(), "ada@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("SignIn() error = %v, want ErrInvalidCredentials", err)
	}
	// Unknown email yields the same error as a wrong password.
	if _, err := svc.SignIn(context.Background(), "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("SignIn() unknown email error = %v, want ErrInvalidCredentials", err)
	}
}

func TestChangePassword(t *testing.T) {
	fs := newFakeUserStore()
	hash, _ := bcrypt.GenerateFromPassword([]byte("old password"), bcrypt.MinCost)
	_ = fs.CreateUser(context.Background(), store.User{ID: "usr_1", Email: "ada@example.com", PasswordHash: string(hash)})
	svc := NewService(fs)
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, "usr_1", "wrong", "new password 1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("ChangePassword() with wrong current error = %v, want ErrInvalidCredentials", err)
	}
	if err := svc.ChangePassword(ctx, "usr_1", "old password", "new password 1"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "ada@example.com", "new password 1"); err != nil {
		t.Fatalf("SignIn() with new password error = %v", err)
	}
}
