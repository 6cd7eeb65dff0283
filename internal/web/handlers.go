package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/datasets/internal/core"
)

// maxSubmissionBody caps PUT /metadata bodies.
const maxSubmissionBody = 1 << 20

// errBadRequest classifies malformed requests that never reach the service.
func errBadRequest(format string, args ...any) error {
	return &core.Error{Kind: core.ErrInvalidInput, Op: "decode request", Msg: fmt.Sprintf(format, args...)}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, "", map[string]any{
		"status":  "ok",
		"uploads": s.service.UploadStatus(),
	})
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := core.ListQuery{Search: q.Get("search")}

	var err error
	if query.Page, err = intParam(q.Get("page")); err != nil {
		s.respondError(w, r, errBadRequest("page must be an integer"))
		return
	}
	if query.Limit, err = intParam(q.Get("limit")); err != nil {
		s.respondError(w, r, errBadRequest("limit must be an integer"))
		return
	}
	for _, raw := range q["categories"] {
		query.Categories = append(query.Categories, strings.Split(raw, ",")...)
	}

	result, err := s.service.List(r.Context(), query)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", result)
}

// intParam parses an optional integer query parameter; empty yields 0.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	opts, err := s.service.Filters(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", opts)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", d)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Dataset deleted successfully", nil)
}

func (s *Server) handleSubmitMetadata(w http.ResponseWriter, r *http.Request) {
	var sub core.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sub); err != nil {
		s.respondError(w, r, errBadRequest("invalid request body: %v", err))
		return
	}

	d, err := s.service.SubmitMetadata(r.Context(), chi.URLParam(r, "id"), sub)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Metadata updated successfully", d)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.service.Versions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", versions)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.withUpload(w, r, func(ctx context.Context, u core.Upload) (core.Dataset, error) {
		return s.service.Upload(ctx, u)
	}, "File uploaded successfully")
}

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.withUpload(w, r, func(ctx context.Context, u core.Upload) (core.Dataset, error) {
		return s.service.CreateVersion(ctx, id, u)
	}, "New version uploaded successfully")
}

// withUpload streams the multipart "file" part of r into fn without
// buffering the form. A request without that part reaches fn with a nil
// body, which the service rejects as "no file uploaded".
func (s *Server) withUpload(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, core.Upload) (core.Dataset, error), message string) {

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.UploadTimeout)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxFileSize+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, r, errBadRequest("error parsing upload: %v", err))
		return
	}

	upload := core.Upload{Size: -1}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.respondError(w, r, errBadRequest("error parsing upload: %v", err))
			return
		}
		if part.FormName() == "file" && part.FileName() != "" {
			defer part.Close()
			upload.Filename = part.FileName()
			upload.Body = part
			break
		}
		part.Close()
	}

	d, err := fn(ctx, upload)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = &core.Error{Kind: core.ErrInvalidInput, Op: "upload",
				Msg: fmt.Sprintf("file size exceeds the limit of %d bytes", s.opts.MaxFileSize)}
		}
		s.respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, message, d)
}
