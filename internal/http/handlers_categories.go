package http

import (
	"net/http"

	"pecunia/internal/core"
)

type createCategoryRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type categoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.svc.ListCategories(r.Context(), ownerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryJSON{ID: c.ID, Name: c.Name, Type: string(c.Type)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	created, err := s.svc.CreateCategory(r.Context(), core.Category{
		OwnerID: ownerFrom(r),
		Name:    sanitizeInput(req.Name),
		Type:    core.TransactionType(req.Type),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryJSON{ID: created.ID, Name: created.Name, Type: string(created.Type)})
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	updated, err := s.svc.UpdateCategory(r.Context(), ownerFrom(r), r.PathValue("id"), core.Category{
		Name: sanitizeInput(req.Name),
		Type: core.TransactionType(req.Type),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryJSON{ID: updated.ID, Name: updated.Name, Type: string(updated.Type)})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCategory(r.Context(), ownerFrom(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCategoryOptions returns the selectable category names for one
// transaction type: built-ins first, then the owner's custom ones.
func (s *Server) handleCategoryOptions(w http.ResponseWriter, r *http.Request) {
	typ := core.TransactionType(r.URL.Query().Get("type"))

	options, err := s.svc.CategoryOptions(r.Context(), ownerFrom(r), typ)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":    string(typ),
		"options": options,
	})
}
