package api

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/yatube/yatube-server/cache"
	"github.com/yatube/yatube-server/service/posts"
	"github.com/yatube/yatube-server/service/user"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := NewRouter(s.db, cache.New(cacheTTLFromEnv()))

	logged := handlers.CombinedLoggingHandler(os.Stdout, router)
	cors := handlers.CORS(
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(logged)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, cors)
}

// NewRouter wires every service onto one mux. Tests build routers the
// same way with their own cache.
func NewRouter(db *gorm.DB, pageCache *cache.PageCache) *mux.Router {
	router := mux.NewRouter()
	router.StrictSlash(true)
	router.NotFoundHandler = http.HandlerFunc(notFound)

	userHandler := user.NewHandler(db)
	userHandler.RegisterRoutes(router)

	postHandler := posts.NewHandler(db, pageCache)
	postHandler.RegisterRoutes(router)

	return router
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Page not found", http.StatusNotFound)
}

// cacheTTLFromEnv reads CACHE_TTL_SECONDS, defaulting to the standard
// 20 second window for the global feed.
func cacheTTLFromEnv() time.Duration {
	seconds, err := strconv.Atoi(os.Getenv("CACHE_TTL_SECONDS"))
	if err != nil || seconds <= 0 {
		return cache.DefaultTTL
	}
	return time.Duration(seconds) * time.Second
}
