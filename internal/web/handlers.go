package web

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/KaramelBytes/csvchat/internal/ai"
	"github.com/KaramelBytes/csvchat/internal/session"
	"github.com/KaramelBytes/csvchat/internal/table"
	"github.com/KaramelBytes/csvchat/internal/utils"
)

const sessionCookieName = "csvchat_session"

type sessionContextKey struct{}

// WithSession attaches the visitor's session, creating one when the cookie
// is missing or points at an expired session.
func (h *Handler) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s *session.Session
		if c, err := r.Cookie(sessionCookieName); err == nil {
			s, _ = h.store.Get(c.Value)
		}
		if s == nil {
			s = h.store.Create()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.Production,
				SameSite: http.SameSiteLaxMode,
			})
			h.log.Debug("session created", "session", s.ID, "request_id", RequestIDFromContext(r.Context()))
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	s, _ := r.Context().Value(sessionContextKey{}).(*session.Session)
	return s
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	s.Lock()
	v := h.view(s)
	s.Unlock()
	renderHTML(w, http.StatusOK, h.homePage(r, v))
}

// Settings stores the model choice and the manually entered key.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	s.Lock()
	defer s.Unlock()

	if model := strings.TrimSpace(r.PostFormValue("model")); model != "" {
		if ai.IsSupported(model) {
			s.SetModel(model)
		} else {
			s.AddNotice(session.LevelError, fmt.Sprintf("Unsupported model: %s", model))
		}
	}
	if _, ok := r.PostForm["api_key"]; ok {
		if key := strings.TrimSpace(r.PostFormValue("api_key")); key != "" {
			s.SetManualKey(key)
			s.AddNotice(session.LevelSuccess, "API key saved for this session")
		}
	}
	redirectHome(w, r, "")
}

// Upload replaces the session's tables with the files of this batch. An
// empty batch leaves the current tables alone.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			s.Lock()
			s.AddNotice(session.LevelError, fmt.Sprintf("Error reading upload: %v", err))
			s.Unlock()
			redirectHome(w, r, "")
			return
		}
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["files"]
	s.Lock()
	defer s.Unlock()
	if len(files) == 0 {
		s.AddNotice(session.LevelInfo, "No files selected")
		redirectHome(w, r, "")
		return
	}

	uploads := make([]table.Upload, 0, len(files))
	for _, fh := range files {
		uploads = append(uploads, fileUpload(fh))
	}
	set, errs := table.Ingest(uploads)
	s.ReplaceTables(set)
	for _, e := range errs {
		s.AddNotice(session.LevelError, e.Error())
	}
	s.AddNotice(session.LevelSuccess, fmt.Sprintf("%d files uploaded", len(files)))

	h.log.Info("upload",
		"session", s.ID,
		"files", len(files),
		"tables", set.Len(),
		"failed", len(errs),
		"request_id", RequestIDFromContext(r.Context()),
	)
	redirectHome(w, r, "")
}

func fileUpload(fh *multipart.FileHeader) table.Upload {
	return table.Upload{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// Chat runs one turn. Blank input is ignored.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	input := strings.TrimSpace(r.PostFormValue("message"))
	if input == "" {
		redirectHome(w, r, "")
		return
	}
	s := sessionFrom(r)
	s.Lock()
	h.exec.Turn(r.Context(), s, input)
	s.Unlock()
	redirectHome(w, r, "latest")
}

// TranscriptJSON downloads the conversation as indented JSON.
func (h *Handler) TranscriptJSON(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	s.Lock()
	tr := s.Transcript()
	s.Unlock()
	if tr == nil {
		tr = []session.Message{}
	}
	b, err := utils.PrettyJSON(tr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="transcript.json"`)
	_, _ = w.Write(b)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}

func redirectHome(w http.ResponseWriter, r *http.Request, anchor string) {
	target := "/"
	if anchor != "" {
		target += "#" + anchor
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
