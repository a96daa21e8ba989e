package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"notbroke/internal/auth"
	"notbroke/internal/core"
)

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	ParentID    *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

// categoryPatch distinguishes an absent parent_id from an explicit null,
// which promotes the category to a root.
type categoryPatch struct {
	Name        *string         `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string         `json:"description" validate:"omitempty,max=500"`
	ParentID    json.RawMessage `json:"parent_id"`
}

type categoryResponse struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	ParentID    *int64             `json:"parent_id"`
	FullPath    string             `json:"full_path,omitempty"`
	Children    []categoryResponse `json:"children,omitempty"`
}

type forestResponse struct {
	Items []categoryResponse `json:"items"`
	Meta  core.PageMeta      `json:"meta"`
}

func toCategoryResponse(rec core.CategoryRecord) categoryResponse {
	return categoryResponse{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		ParentID:    rec.ParentID,
	}
}

func toNodeResponse(node *core.CategoryNode) categoryResponse {
	resp := toCategoryResponse(node.CategoryRecord)
	resp.FullPath = node.FullPath
	for _, child := range node.Children {
		resp.Children = append(resp.Children, toNodeResponse(child))
	}
	return resp
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req categoryRequest
	if err := s.decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	rec, err := s.categories.Create(r.Context(), p.UserID, core.CategoryRecord{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, toCategoryResponse(rec))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	page, perPage := queryPage(r)
	roots, meta, err := s.categories.Forest(r.Context(), p.UserID, r.URL.Query().Get("q"), page, perPage)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := forestResponse{Items: make([]categoryResponse, 0, len(roots)), Meta: meta}
	for _, root := range roots {
		resp.Items = append(resp.Items, toNodeResponse(root))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	node, err := s.categories.Get(r.Context(), p.UserID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toNodeResponse(node))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var patch categoryPatch
	if err := s.decodeJSON(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}

	rec, err := s.categories.Get(r.Context(), p.UserID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	updated := rec.CategoryRecord
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if set, parentID, err := parseNullableID(patch.ParentID); err != nil {
		respondError(w, r, err)
		return
	} else if set {
		updated.ParentID = parentID
	}

	saved, err := s.categories.Update(r.Context(), p.UserID, updated)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCategoryResponse(saved))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.categories.Delete(r.Context(), p.UserID, id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseNullableID returns set=false when raw is absent, a nil id for an
// explicit null, and the parsed id otherwise.
func parseNullableID(raw json.RawMessage) (set bool, id *int64, err error) {
	if len(raw) == 0 {
		return false, nil, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return true, nil, nil
	}

	var v int64
	if err := json.Unmarshal(raw, &v); err != nil || v <= 0 {
		return false, nil, fmt.Errorf("%w: parent_id must be a positive integer or null", errBadRequest)
	}
	return true, &v, nil
}
