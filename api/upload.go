package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/bpsreport/report-server/globals"
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// uploadImage accepts a single multipart "image" field, rejects anything that
// is not a jpeg/png/gif or exceeds the configured size, and stores it under a
// unique name. The returned path is what a response's image field references.
func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.UploadsConfig.MaxSize
	// some slack for the multipart framing around the file itself
	bodyLimit := maxSize + 64*1024
	if r.ContentLength > bodyLimit {
		writeJSON(w, http.StatusBadRequest, uploadResponse{
			Message: fmt.Sprintf("file too large, maximum is %dMB", maxSize/1024/1024),
		})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusBadRequest, uploadResponse{
				Message: fmt.Sprintf("file too large, maximum is %dMB", maxSize/1024/1024),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, uploadResponse{Message: "invalid multipart request"})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Message: "no file uploaded"})
		return
	}
	defer file.Close()
	if header.Size > maxSize {
		writeJSON(w, http.StatusBadRequest, uploadResponse{
			Message: fmt.Sprintf("file too large, maximum is %dMB", maxSize/1024/1024),
		})
		return
	}

	// sniff the actual content, the declared Content-Type is client-supplied
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		globals.AppLogger.Error("could not read upload", "error", err)
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Message: "failed to upload file"})
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		writeJSON(w, http.StatusBadRequest, uploadResponse{
			Message: "only JPEG, PNG and GIF images are allowed",
		})
		return
	}
	if e := strings.ToLower(filepath.Ext(header.Filename)); e == ".jpeg" {
		ext = e
	}

	name := fmt.Sprintf("%d-%09d%s", time.Now().UnixMilli(), rand.Intn(1_000_000_000), ext)
	path, err := s.uploads.Save(name, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		globals.AppLogger.Error("could not store upload", "error", err)
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Message: "failed to upload file"})
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		Path:    path,
		Message: "file uploaded successfully",
	})
}
