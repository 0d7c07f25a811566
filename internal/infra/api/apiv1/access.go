package apiv1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
)

func (s *Server) hasAccess(w http.ResponseWriter, r *http.Request) {
	comicID := chi.URLParam(r, "id")
	var requested *string
	if v := r.URL.Query().Get("owner_id"); v != "" {
		requested = &v
	}
	owner := ownerParam(principalFrom(r.Context()), requested)
	ok, err := s.Access.HasAccess(r.Context(), owner, comicID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AccessResponse{ComicID: comicID, HasAccess: ok})
}

func (s *Server) addToLibrary(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	g, err := s.Access.AddToLibrary(r.Context(), p.OwnerID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrants([]*model.EntitlementGrant{g})[0])
}

func (s *Server) listLibrary(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	gs, err := s.Access.ListLibrary(r.Context(), p.OwnerID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrants(gs))
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	sub, err := s.Access.GetSubscription(r.Context(), p.OwnerID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := toSubscription(sub)
	if out == nil {
		out = &Subscription{Status: "none"}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans := s.Plans.List(r.Context())
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlan(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	u, err := s.Users.Get(r.Context(), p.OwnerID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, Profile{ID: u.ID, Name: u.Name, Email: u.Email, RegisteredAt: u.RegisteredAt})
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := principalFrom(r.Context())
	u, err := s.Users.RegisterOrUpdate(r.Context(), p.OwnerID, req.Name, req.Email)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, Profile{ID: u.ID, Name: u.Name, Email: u.Email, RegisteredAt: u.RegisteredAt})
}
