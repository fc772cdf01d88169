package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"quizz/internal/models"
	"quizz/pkg/database"
)

const testSecret = "test-secret"

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewService(NewRepository(db), testSecret)
}

func register(t *testing.T, s *Service, username, password string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Password: password}
	if err := s.Register(context.Background(), user); err != nil {
		t.Fatalf("Register(%s) failed: %v", username, err)
	}
	return user
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	user := register(t, s, "alice", "hunter2")
	if user.Password == "hunter2" {
		t.Error("Expected password to be hashed")
	}

	token, err := s.Login(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Username != "alice" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

func TestLoginFailures(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	register(t, s, "alice", "hunter2")

	if _, err := s.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := s.Login(ctx, "bob", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	register(t, s, "alice", "hunter2")

	if err := s.Register(ctx, &models.User{Username: "alice", Password: "x"}); !errors.Is(err, ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
	if err := s.Register(ctx, &models.User{Username: "  ", Password: "x"}); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("Expected ErrInvalidUser for blank username, got %v", err)
	}
	if err := s.Register(ctx, &models.User{Username: "bob"}); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("Expected ErrInvalidUser for blank password, got %v", err)
	}
}

func TestCreateUserDuplicateIsUserExists(t *testing.T) {
	s := newTestService(t)
	register(t, s, "alice", "hunter2")

	// Same name inserted after the availability check already passed.
	err := s.repo.CreateUser(context.Background(), &models.User{Username: "alice", Password: "x"})
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
}

func TestConcurrentRegistrationOneWins(t *testing.T) {
	s := newTestService(t)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Register(context.Background(), &models.User{Username: "carol", Password: "pw"})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case !errors.Is(err, ErrUserExists):
			t.Errorf("Expected ErrUserExists for the losers, got %v", err)
		}
	}
	if won != 1 {
		t.Errorf("Expected exactly one registration to succeed, got %d", won)
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	s := newTestService(t)
	register(t, s, "alice", "hunter2")
	token, err := s.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := ParseToken(token, "other-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
	if _, err := ParseToken("not-a-token", testSecret); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestJWTMiddleware(t *testing.T) {
	s := newTestService(t)
	user := register(t, s, "alice", "hunter2")
	token, err := s.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	var gotID uint
	var gotName string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserIDFromContext(r.Context())
		gotName = UsernameFromContext(r.Context())
	})
	handler := JWTMiddleware(testSecret)(next)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"query token", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"bad format", "Token " + token, "", http.StatusUnauthorized},
		{"bad token", "Bearer abc.def.ghi", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, gotName = 0, ""
			req := httptest.NewRequest(http.MethodGet, "/api/quiz"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusOK && (gotID != user.ID || gotName != "alice") {
				t.Errorf("Expected user %d alice in context, got %d %q", user.ID, gotID, gotName)
			}
		})
	}
}

func TestHandlerRegisterAndLogin(t *testing.T) {
	h := NewHandler(newTestService(t))

	body, _ := json.Marshal(RegisterRequest{Username: "alice", Password: "hunter2"})
	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate user, got %d", rec.Code)
	}

	body, _ = json.Marshal(LoginRequest{Username: "alice", Password: "hunter2"})
	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp["token"] == "" {
		t.Errorf("Expected token in response, got %v, %v", resp, err)
	}

	body, _ = json.Marshal(LoginRequest{Username: "alice", Password: "nope"})
	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}
