package utils

import (
    "fmt"
    "io"
    "mime/multipart"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/google/uuid"
)

// MaxImageSize caps uploaded post images at 10 MB.
const MaxImageSize = 10 << 20

// MediaRoot is where uploaded post images land; the stored reference is
// relative to it ("posts/<filename>").
const MediaRoot = "uploads"

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// SavePostImage stores a post's attached image under MediaRoot/posts and
// returns the relative path kept on the Post record.
func SavePostImage(file multipart.File, header *multipart.FileHeader) (string, error) {
    if header.Size > MaxImageSize {
        return "", fmt.Errorf("image larger than %d MB", MaxImageSize/(1<<20))
    }

    ext := strings.ToLower(filepath.Ext(header.Filename))
    if !isImageExtension(ext) {
        return "", fmt.Errorf("unsupported image type: %s", ext)
    }

    dir := filepath.Join(MediaRoot, "posts")
    if err := os.MkdirAll(dir, 0755); err != nil {
        return "", fmt.Errorf("failed to create media directory: %w", err)
    }

    filename := fmt.Sprintf("%s-%s%s", time.Now().Format("20060102"), uuid.New().String(), ext)

    dst, err := os.Create(filepath.Join(dir, filename))
    if err != nil {
        return "", fmt.Errorf("failed to create image file: %w", err)
    }
    defer dst.Close()

    if _, err := io.Copy(dst, file); err != nil {
        return "", fmt.Errorf("failed to write image: %w", err)
    }

    return filepath.ToSlash(filepath.Join("posts", filename)), nil
}

func isImageExtension(ext string) bool {
    for _, valid := range imageExtensions {
        if ext == valid {
            return true
        }
    }
    return false
}

// DeletePostImage removes a stored image; a missing file is not an error.
func DeletePostImage(imagePath string) error {
    full := filepath.Join(MediaRoot, filepath.FromSlash(imagePath))
    if _, err := os.Stat(full); os.IsNotExist(err) {
        return nil
    }
    return os.Remove(full)
}
