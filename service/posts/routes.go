package posts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/yatube/yatube-server/cache"
	"github.com/yatube/yatube-server/cmd/models"
	"github.com/yatube/yatube-server/cmd/utils"
	"gorm.io/gorm"
)

// Templates rendered by the presentation layer for each view. The
// handlers only report which one applies; rendering itself lives outside
// this service.
const (
	indexTemplate      = "posts/index.html"
	groupListTemplate  = "posts/group_list.html"
	profileTemplate    = "posts/profile.html"
	postDetailTemplate = "posts/post_detail.html"
	createPostTemplate = "posts/create_post.html"
	followTemplate     = "posts/follow.html"
)

type Handler struct {
	store *Store
	cache *cache.PageCache
}

func NewHandler(db *gorm.DB, pageCache *cache.PageCache) *Handler {
	return &Handler{store: NewStore(db), cache: pageCache}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Index).Methods("GET")
	router.HandleFunc("/follow/", utils.LoginRequired(h.FollowIndex)).Methods("GET")
	router.HandleFunc("/create/", utils.LoginRequired(h.CreatePostForm)).Methods("GET")
	router.HandleFunc("/create/", utils.LoginRequired(h.CreatePost)).Methods("POST")
	router.HandleFunc("/group/{slug}/", h.GroupPosts).Methods("GET")
	router.HandleFunc("/profile/{username}/", h.Profile).Methods("GET")
	router.HandleFunc("/profile/{username}/follow/", utils.LoginRequired(h.ProfileFollow)).Methods("POST")
	router.HandleFunc("/profile/{username}/unfollow/", utils.LoginRequired(h.ProfileUnfollow)).Methods("POST")
	router.HandleFunc("/posts/{id:[0-9]+}/", h.PostDetail).Methods("GET")
	router.HandleFunc("/posts/{id:[0-9]+}/edit/", utils.LoginRequired(h.EditPostForm)).Methods("GET")
	router.HandleFunc("/posts/{id:[0-9]+}/edit/", utils.LoginRequired(h.EditPost)).Methods("POST")
	router.HandleFunc("/posts/{id:[0-9]+}/delete/", utils.LoginRequired(h.DeletePost)).Methods("POST")
	router.HandleFunc("/posts/{id:[0-9]+}/comment/", utils.LoginRequired(h.AddComment)).Methods("POST")
}

// viewContext is the JSON shape every read view responds with: the
// template the presentation layer should use plus the view's data.
type viewContext struct {
	Template  string            `json:"template"`
	Page      *utils.Page       `json:"page,omitempty"`
	Posts     []models.Post     `json:"posts,omitempty"`
	Group     *models.Group     `json:"group,omitempty"`
	Author    *models.User      `json:"author,omitempty"`
	Following *bool             `json:"following,omitempty"`
	Post      *models.Post      `json:"post,omitempty"`
	Comments  []models.Comment  `json:"comments,omitempty"`
	Form      *postForm         `json:"form,omitempty"`
	IsEdit    bool              `json:"is_edit,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type postForm struct {
	Text  string `json:"text"`
	Group *uint  `json:"group,omitempty"`
	Image string `json:"image,omitempty"`
}

func writeJSON(w http.ResponseWriter, ctx *viewContext) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ctx)
}

// Index serves the global feed. The rendered page is cached per page
// number for the configured TTL; writes within the window are not
// reflected until expiry.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	page := utils.PageNumber(r)
	key := fmt.Sprintf("posts:index:%d", page)

	if body, found := h.cache.Get(key); found {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}

	feed, window, err := h.store.GlobalFeed(page)
	if err != nil {
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}

	body, err := json.Marshal(&viewContext{
		Template: indexTemplate,
		Page:     &window,
		Posts:    feed,
	})
	if err != nil {
		http.Error(w, "Error rendering posts", http.StatusInternalServerError)
		return
	}

	h.cache.Set(key, body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// GroupPosts serves one group's feed, identified by slug.
func (h *Handler) GroupPosts(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	group, err := h.store.GroupBySlug(vars["slug"])
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Group not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Error retrieving group", http.StatusInternalServerError)
		return
	}

	feed, window, err := h.store.GroupFeed(group.ID, utils.PageNumber(r))
	if err != nil {
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}

	writeJSON(w, &viewContext{
		Template: groupListTemplate,
		Page:     &window,
		Posts:    feed,
		Group:    group,
	})
}

// Profile serves an author's feed along with the profile owner and, for
// logged-in viewers, whether they follow the author.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	author, err := h.store.UserByUsername(vars["username"])
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Error retrieving user", http.StatusInternalServerError)
		return
	}

	feed, window, err := h.store.ProfileFeed(author.ID, utils.PageNumber(r))
	if err != nil {
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}

	ctx := &viewContext{
		Template: profileTemplate,
		Page:     &window,
		Posts:    feed,
		Author:   author,
	}
	if viewerID, ok := utils.CurrentUserID(r); ok {
		following, err := h.store.IsFollowing(viewerID, author.ID)
		if err != nil {
			log.Printf("Error checking follow status for user %d: %v", viewerID, err)
		} else {
			ctx.Following = &following
		}
	}
	writeJSON(w, ctx)
}

// PostDetail serves one post with its comments, newest first.
func (h *Handler) PostDetail(w http.ResponseWriter, r *http.Request) {
	post, ok := h.postFromRequest(w, r)
	if !ok {
		return
	}

	comments, err := h.store.CommentsForPost(post.ID)
	if err != nil {
		http.Error(w, "Error retrieving comments", http.StatusInternalServerError)
		return
	}

	writeJSON(w, &viewContext{
		Template: postDetailTemplate,
		Post:     post,
		Comments: comments,
		Form:     &postForm{},
	})
}

// FollowIndex serves the personalized feed of every followed author.
// Unlike the global feed it is never cached.
func (h *Handler) FollowIndex(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	feed, window, err := h.store.FollowFeed(userID, utils.PageNumber(r))
	if err != nil {
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}

	writeJSON(w, &viewContext{
		Template: followTemplate,
		Page:     &window,
		Posts:    feed,
	})
}

// CreatePostForm serves the empty post form.
func (h *Handler) CreatePostForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, &viewContext{
		Template: createPostTemplate,
		Form:     &postForm{},
	})
}

// CreatePost handles a submitted post form. A valid submission redirects
// to the author's profile; validation failures re-present the form with
// the prior input preserved.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	form, file, header, formErrors := h.parsePostForm(w, r)
	if form == nil {
		return
	}
	if len(formErrors) > 0 {
		writeJSON(w, &viewContext{Template: createPostTemplate, Form: form, Errors: formErrors})
		return
	}

	post := models.Post{
		Text:     form.Text,
		AuthorID: userID,
		GroupID:  form.Group,
	}
	if file != nil {
		defer file.Close()
		imagePath, err := utils.SavePostImage(file, header)
		if err != nil {
			writeJSON(w, &viewContext{
				Template: createPostTemplate,
				Form:     form,
				Errors:   map[string]string{"image": err.Error()},
			})
			return
		}
		post.ImagePath = imagePath
	}

	if err := h.store.CreatePost(&post); err != nil {
		http.Error(w, "Error creating post", http.StatusInternalServerError)
		return
	}

	author, err := h.store.UserByID(userID)
	if err != nil {
		http.Error(w, "Error retrieving user", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/profile/%s/", author.Username), http.StatusFound)
}

// EditPostForm serves the pre-filled edit form. Non-authors are sent
// back to the post detail page.
func (h *Handler) EditPostForm(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	post, ok := h.postFromRequest(w, r)
	if !ok {
		return
	}
	if !post.IsAuthor(userID) {
		http.Redirect(w, r, fmt.Sprintf("/posts/%d/", post.ID), http.StatusFound)
		return
	}

	writeJSON(w, &viewContext{
		Template: createPostTemplate,
		IsEdit:   true,
		Post:     post,
		Form:     &postForm{Text: post.Text, Group: post.GroupID, Image: post.ImagePath},
	})
}

// EditPost applies a submitted edit. Only the author may change the
// post; anyone else is redirected to the detail page with nothing
// applied. The creation timestamp never changes.
func (h *Handler) EditPost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	post, ok := h.postFromRequest(w, r)
	if !ok {
		return
	}
	if !post.IsAuthor(userID) {
		http.Redirect(w, r, fmt.Sprintf("/posts/%d/", post.ID), http.StatusFound)
		return
	}

	form, file, header, formErrors := h.parsePostForm(w, r)
	if form == nil {
		return
	}
	if len(formErrors) > 0 {
		writeJSON(w, &viewContext{
			Template: createPostTemplate,
			IsEdit:   true,
			Post:     post,
			Form:     form,
			Errors:   formErrors,
		})
		return
	}

	post.Text = form.Text
	post.GroupID = form.Group
	if file != nil {
		defer file.Close()
		imagePath, err := utils.SavePostImage(file, header)
		if err != nil {
			writeJSON(w, &viewContext{
				Template: createPostTemplate,
				IsEdit:   true,
				Post:     post,
				Form:     form,
				Errors:   map[string]string{"image": err.Error()},
			})
			return
		}
		if post.ImagePath != "" {
			if err := utils.DeletePostImage(post.ImagePath); err != nil {
				log.Printf("Error removing replaced image %s: %v", post.ImagePath, err)
			}
		}
		post.ImagePath = imagePath
	}

	if err := h.store.UpdatePost(post); err != nil {
		http.Error(w, "Error updating post", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/posts/%d/", post.ID), http.StatusFound)
}

// DeletePost removes a post and its comments. Author-only, same guard
// as edit.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	post, ok := h.postFromRequest(w, r)
	if !ok {
		return
	}
	if !post.IsAuthor(userID) {
		http.Redirect(w, r, fmt.Sprintf("/posts/%d/", post.ID), http.StatusFound)
		return
	}

	if err := h.store.DeletePost(post.ID); err != nil {
		http.Error(w, "Error deleting post", http.StatusInternalServerError)
		return
	}
	if post.ImagePath != "" {
		if err := utils.DeletePostImage(post.ImagePath); err != nil {
			log.Printf("Error removing image %s: %v", post.ImagePath, err)
		}
	}

	author, err := h.store.UserByID(userID)
	if err != nil {
		http.Error(w, "Error retrieving user", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/profile/%s/", author.Username), http.StatusFound)
}

// AddComment attaches a comment to a post and redirects back to the
// detail page. Empty or overlong text re-presents the comment form.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	post, ok := h.postFromRequest(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(r.FormValue("text"))

	comment := models.Comment{
		PostID:   post.ID,
		AuthorID: userID,
		Text:     text,
	}
	if err := comment.Validate(); err != nil {
		writeJSON(w, &viewContext{
			Template: postDetailTemplate,
			Post:     post,
			Form:     &postForm{Text: text},
			Errors:   map[string]string{"text": "Comment text is required and limited to 300 characters"},
		})
		return
	}

	if err := h.store.AddComment(&comment); err != nil {
		http.Error(w, "Error creating comment", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/posts/%d/", post.ID), http.StatusFound)
}

// ProfileFollow subscribes the requester to an author's posts. Duplicate
// and self follows are silent no-ops.
func (h *Handler) ProfileFollow(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	author, err := h.store.UserByUsername(vars["username"])
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Error retrieving user", http.StatusInternalServerError)
		return
	}

	if err := h.store.Follow(userID, author.ID); err != nil {
		http.Error(w, "Error following user", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/profile/%s/", author.Username), http.StatusFound)
}

func (h *Handler) ProfileUnfollow(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	author, err := h.store.UserByUsername(vars["username"])
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Error retrieving user", http.StatusInternalServerError)
		return
	}

	if err := h.store.Unfollow(userID, author.ID); err != nil {
		http.Error(w, "Error unfollowing user", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/profile/%s/", author.Username), http.StatusFound)
}

// postFromRequest resolves the {id} path variable. On failure it has
// already written the response.
func (h *Handler) postFromRequest(w http.ResponseWriter, r *http.Request) (*models.Post, bool) {
	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return nil, false
	}

	post, err := h.store.PostByID(uint(postID))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Post not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Error retrieving post", http.StatusInternalServerError)
		return nil, false
	}
	return post, true
}

// parsePostForm reads the post form from either a multipart or
// urlencoded body. A nil form means the response was already written;
// a non-empty error map means the form should be re-presented.
func (h *Handler) parsePostForm(w http.ResponseWriter, r *http.Request) (*postForm, multipart.File, *multipart.FileHeader, map[string]string) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(utils.MaxImageSize); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return nil, nil, nil, nil
		}
	} else if err := r.ParseForm(); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return nil, nil, nil, nil
	}

	form := &postForm{Text: strings.TrimSpace(r.FormValue("text"))}
	formErrors := map[string]string{}

	if form.Text == "" {
		formErrors["text"] = "Post text is required"
	}

	if groupValue := r.FormValue("group"); groupValue != "" {
		groupID, err := strconv.ParseUint(groupValue, 10, 64)
		if err != nil {
			formErrors["group"] = "Invalid group"
		} else if _, err := h.store.GroupByID(uint(groupID)); errors.Is(err, ErrNotFound) {
			formErrors["group"] = "Unknown group"
		} else if err != nil {
			http.Error(w, "Error retrieving group", http.StatusInternalServerError)
			return nil, nil, nil, nil
		} else {
			id := uint(groupID)
			form.Group = &id
		}
	}

	var file multipart.File
	var header *multipart.FileHeader
	if r.MultipartForm != nil {
		f, fh, err := r.FormFile("image")
		if err == nil {
			file, header = f, fh
		} else if !errors.Is(err, http.ErrMissingFile) {
			http.Error(w, "Error processing image", http.StatusBadRequest)
			return nil, nil, nil, nil
		}
	}

	return form, file, header, formErrors
}
