package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/yatube/yatube-server/cmd/models"
	"github.com/yatube/yatube-server/cmd/utils"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

const loginTemplate = "users/login.html"

// accessTokenMinutes is how long an issued token stays valid.
const accessTokenMinutes = 60 * 24

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/signup/", h.HandleSignup).Methods("POST")
	router.HandleFunc("/auth/login/", h.LoginForm).Methods("GET")
	router.HandleFunc("/auth/login/", h.HandleLogin).Methods("POST")
	router.HandleFunc("/auth/users/{id}/", utils.LoginRequired(h.DeleteUser)).Methods("DELETE")
}

// HandleSignup registers a new account.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var signupRequest struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&signupRequest); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}
	if signupRequest.Password == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	user := models.User{
		Username: signupRequest.Username,
		Email:    signupRequest.Email,
	}
	if err := user.Validate(); err != nil {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	var existingUser models.User
	if result := h.db.Where("username = ?", signupRequest.Username).First(&existingUser); !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		log.Printf("Registration attempt with duplicate username %q", signupRequest.Username)
		http.Error(w, "Username is already in use", http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(signupRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}
	user.PasswordHash = string(passwordHash)

	if err := h.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			http.Error(w, "Username is already in use", http.StatusConflict)
			return
		}
		http.Error(w, "Error registering user", http.StatusInternalServerError)
		return
	}

	// Best effort; signup succeeds even if the mail cannot be sent.
	if err := sendWelcomeEmail(user.Email, user.Username); err != nil {
		log.Printf("Error sending welcome email to %s: %v", user.Email, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Registration successful",
		"user_id": user.ID,
	})
}

// LoginForm serves the login view context. The next parameter carries
// the page the client gets back to after logging in.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"template": loginTemplate,
		"next":     r.URL.Query().Get("next"),
	})
}

// HandleLogin checks credentials and issues an access token, both in
// the response body and as the auth_token cookie for browser flows.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if result := h.db.Where("username = ?", loginRequest.Username).First(&user); result.Error != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := utils.GenerateJWT(user.ID, accessTokenMinutes)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      "Login successful",
		"access_token": accessToken,
		"user_id":      user.ID,
	})
}

// DeleteUser removes an account with everything hanging off it: the
// user's comments, comments on the user's posts, the posts themselves
// and every follow edge touching the user.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	requesterID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if requesterID != uint(userID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		ownPosts := tx.Model(&models.Post{}).Select("id").Where("author_id = ?", userID)
		if err := tx.Where("post_id IN (?)", ownPosts).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", userID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", userID).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("follower_id = ? OR followed_id = ?", userID, userID).Delete(&models.Follow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, userID).Error
	})
	if err != nil {
		http.Error(w, "Error deleting user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "User deleted successfully",
	})
}

func sendWelcomeEmail(email, username string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	if smtpHost == "" {
		return nil
	}
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Welcome to Yatube")
	m.SetBody("text/plain", fmt.Sprintf("Hi %s, your account is ready. Start posting and following authors you like.", username))

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}
