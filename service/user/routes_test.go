package user

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yatube/yatube-server/cmd/models"
	"github.com/yatube/yatube-server/cmd/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) (*mux.Router, *gorm.DB) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.Post{},
		&models.Comment{},
		&models.Follow{},
	))

	router := mux.NewRouter()
	router.StrictSlash(true)
	NewHandler(db).RegisterRoutes(router)
	return router, db
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func doRequest(router *mux.Router, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestSignupCreatesUser(t *testing.T) {
	router, db := newTestRouter(t)

	w := doRequest(router, jsonRequest(t, "POST", "/auth/signup/", map[string]string{
		"username": "Test_User",
		"email":    "test@example.com",
		"password": "s3cret-pass",
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	var user models.User
	require.NoError(t, db.Where("username = ?", "Test_User").First(&user).Error)
	assert.Equal(t, "test@example.com", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))
}

func TestSignupDuplicateUsername(t *testing.T) {
	router, _ := newTestRouter(t)

	payload := map[string]string{
		"username": "Test_User",
		"email":    "test@example.com",
		"password": "s3cret-pass",
	}
	w := doRequest(router, jsonRequest(t, "POST", "/auth/signup/", payload))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(router, jsonRequest(t, "POST", "/auth/signup/", payload))
	assert.Equal(t, http.StatusConflict, w.Code)
}

// The conflict branch on insert relies on the driver error being
// translated to gorm.ErrDuplicatedKey.
func TestDuplicateUsernameTranslatedOnInsert(t *testing.T) {
	_, db := newTestRouter(t)

	require.NoError(t, db.Create(&models.User{Username: "Test_User", Email: "a@example.com", PasswordHash: "x"}).Error)
	err := db.Create(&models.User{Username: "Test_User", Email: "b@example.com", PasswordHash: "x"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestSignupMissingFields(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []map[string]string{
		{"email": "test@example.com", "password": "pass"},
		{"username": "Test_User", "password": "pass"},
		{"username": "Test_User", "email": "test@example.com"},
		{"username": "Test_User", "email": "not-an-email", "password": "pass"},
	}
	for _, payload := range cases {
		w := doRequest(router, jsonRequest(t, "POST", "/auth/signup/", payload))
		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %v", payload)
	}
}

func signup(t *testing.T, router *mux.Router, username, password string) {
	t.Helper()
	w := doRequest(router, jsonRequest(t, "POST", "/auth/signup/", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	}))
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestLoginIssuesToken(t *testing.T) {
	router, db := newTestRouter(t)
	signup(t, router, "Test_User", "s3cret-pass")

	w := doRequest(router, jsonRequest(t, "POST", "/auth/login/", map[string]string{
		"username": "Test_User",
		"password": "s3cret-pass",
	}))
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		AccessToken string `json:"access_token"`
		UserID      uint   `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.NotEmpty(t, response.AccessToken)

	var user models.User
	require.NoError(t, db.Where("username = ?", "Test_User").First(&user).Error)
	assert.Equal(t, user.ID, response.UserID)

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(response.AccessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, fmt.Sprint(user.ID), claims.Subject)

	// Browser flows get the token as a cookie too.
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "auth_token", cookies[0].Name)
	assert.Equal(t, response.AccessToken, cookies[0].Value)
}

func TestLoginWrongPassword(t *testing.T) {
	router, _ := newTestRouter(t)
	signup(t, router, "Test_User", "s3cret-pass")

	w := doRequest(router, jsonRequest(t, "POST", "/auth/login/", map[string]string{
		"username": "Test_User",
		"password": "wrong",
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginUnknownUser(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, jsonRequest(t, "POST", "/auth/login/", map[string]string{
		"username": "nobody",
		"password": "whatever",
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginFormEchoesNext(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, httptest.NewRequest("GET", "/auth/login/?next=/create/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Template string `json:"template"`
		Next     string `json:"next"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "users/login.html", response.Template)
	assert.Equal(t, "/create/", response.Next)
}

func TestDeleteUserCascades(t *testing.T) {
	router, db := newTestRouter(t)

	alice := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	bob := &models.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(alice).Error)
	require.NoError(t, db.Create(bob).Error)

	alicePost := &models.Post{Text: "from alice", AuthorID: alice.ID}
	bobPost := &models.Post{Text: "from bob", AuthorID: bob.ID}
	require.NoError(t, db.Create(alicePost).Error)
	require.NoError(t, db.Create(bobPost).Error)

	// Comments in both directions, follows in both directions.
	require.NoError(t, db.Create(&models.Comment{PostID: alicePost.ID, AuthorID: bob.ID, Text: "bob on alice"}).Error)
	require.NoError(t, db.Create(&models.Comment{PostID: bobPost.ID, AuthorID: alice.ID, Text: "alice on bob"}).Error)
	require.NoError(t, db.Create(&models.Follow{FollowerID: alice.ID, FollowedID: bob.ID}).Error)
	require.NoError(t, db.Create(&models.Follow{FollowerID: bob.ID, FollowedID: alice.ID}).Error)

	token, err := utils.GenerateJWT(alice.ID, 60)
	require.NoError(t, err)
	r := httptest.NewRequest("DELETE", fmt.Sprintf("/auth/users/%d/", alice.ID), nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := doRequest(router, r)
	require.Equal(t, http.StatusOK, w.Code)

	var users, posts, comments, follows int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	require.NoError(t, db.Model(&models.Comment{}).Count(&comments).Error)
	require.NoError(t, db.Model(&models.Follow{}).Count(&follows).Error)

	assert.Equal(t, int64(1), users)
	assert.Equal(t, int64(1), posts)
	assert.Zero(t, comments) // bob's comment went with alice's post, alice's went with alice
	assert.Zero(t, follows)

	var survivor models.Post
	require.NoError(t, db.First(&survivor).Error)
	assert.Equal(t, bob.ID, survivor.AuthorID)
}

func TestDeleteUserForbiddenForOthers(t *testing.T) {
	router, db := newTestRouter(t)

	alice := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	bob := &models.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(alice).Error)
	require.NoError(t, db.Create(bob).Error)

	token, err := utils.GenerateJWT(bob.ID, 60)
	require.NoError(t, err)
	r := httptest.NewRequest("DELETE", fmt.Sprintf("/auth/users/%d/", alice.ID), nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := doRequest(router, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Equal(t, int64(2), users)
}

func TestDeleteUserGuestRedirectsToLogin(t *testing.T) {
	router, db := newTestRouter(t)

	alice := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(alice).Error)

	r := httptest.NewRequest("DELETE", fmt.Sprintf("/auth/users/%d/", alice.ID), nil)
	w := doRequest(router, r)
	assert.Equal(t, http.StatusFound, w.Code)
}
