package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sugang-app/apiserver/internal/services"
	"github.com/sugang-app/apiserver/internal/store"
	"github.com/sugang-app/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepo struct {
	users   map[string]types.User
	updated *types.User
}

func (f *fakeUserRepo) GetByStudentID(ctx context.Context, studentID string) (types.User, error) {
	user, ok := f.users[studentID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	return user, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := f.users[user.StudentID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	f.users[user.StudentID] = user
	f.updated = &user
	return user, nil
}

func (f *fakeUserRepo) ListRegisteredCourses(ctx context.Context, studentID string) ([]types.Course, error) {
	return nil, nil
}

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	token, err := issueToken("20240001", secret, time.Hour)
	require.NoError(t, err)

	subject, err := parseTokenSubject(token, secret)
	require.NoError(t, err)
	require.Equal(t, "20240001", subject)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := issueToken("20240001", []byte("secret-a"), time.Hour)
	require.NoError(t, err)

	_, err = parseTokenSubject(token, []byte("secret-b"))
	require.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := issueToken("20240001", secret, -time.Minute)
	require.NoError(t, err)

	_, err = parseTokenSubject(token, secret)
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")

	token, err := bearerToken(r)
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", token)

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err = bearerToken(r)
	require.Error(t, err)

	r.Header.Del("Authorization")
	_, err = bearerToken(r)
	require.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	secret := "test-secret"
	handler := RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := studentIDFromContext(r.Context())
		require.NoError(t, err)
		w.Write([]byte(subject))
	}))

	token, err := issueToken("20240001", []byte(secret), time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/me/courses", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "20240001", w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/me/courses", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateMe(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]types.User{
		"20240001": {StudentID: "20240001", Name: "Old Name", Department: "CS"},
	}}
	handler := NewAuthHandler(services.NewUserService(repo), "test-secret")

	r := httptest.NewRequest(http.MethodPut, "/auth/me",
		strings.NewReader(`{"name":"New Name","password":"hunter22"}`))
	ctx := context.WithValue(r.Context(), contextSubjectKey, "20240001")
	w := httptest.NewRecorder()
	handler.UpdateMe(w, r.WithContext(ctx))

	require.Equal(t, http.StatusOK, w.Code)

	var updated types.User
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	require.Equal(t, "New Name", updated.Name)
	// Department was omitted and stays put; the student ID never changes.
	require.Equal(t, "CS", updated.Department)
	require.Equal(t, "20240001", updated.StudentID)

	require.NotNil(t, repo.updated)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.updated.PasswordHash), []byte("hunter22")))
}

func TestUpdateMeUnauthorized(t *testing.T) {
	handler := NewAuthHandler(services.NewUserService(&fakeUserRepo{}), "test-secret")

	r := httptest.NewRequest(http.MethodPut, "/auth/me", strings.NewReader(`{"name":"X"}`))
	w := httptest.NewRecorder()
	handler.UpdateMe(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestParsePagination(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/courses", nil)
	page, limit, offset, err := parsePagination(r)
	require.NoError(t, err)
	require.Equal(t, defaultPage, page)
	require.Equal(t, defaultLimit, limit)
	require.Zero(t, offset)

	r = httptest.NewRequest(http.MethodGet, "/courses?page=3&limit=25", nil)
	page, limit, offset, err = parsePagination(r)
	require.NoError(t, err)
	require.Equal(t, 3, page)
	require.Equal(t, 25, limit)
	require.Equal(t, 50, offset)

	r = httptest.NewRequest(http.MethodGet, "/courses?limit=9999", nil)
	_, limit, _, err = parsePagination(r)
	require.NoError(t, err)
	require.Equal(t, maxLimit, limit)

	r = httptest.NewRequest(http.MethodGet, "/courses?page=0", nil)
	_, _, _, err = parsePagination(r)
	require.Error(t, err)

	r = httptest.NewRequest(http.MethodGet, "/courses?limit=abc", nil)
	_, _, _, err = parsePagination(r)
	require.Error(t, err)
}
