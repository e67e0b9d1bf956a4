package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/logger"
	"github.com/zsiec/avcore/internal/registry"
	"github.com/zsiec/avcore/pkg/version"
)

// ContainerListResponse is the body of GET /api/v1/containers.
type ContainerListResponse struct {
	Containers []*registry.ContainerSnapshot `json:"containers"`
	Count      int                           `json:"count"`
	// NextCursor is set on paged listings; "0" marks the last page.
	NextCursor string `json:"next_cursor,omitempty"`
}

// maxPageSize caps the count parameter of a paged listing.
const maxPageSize = 1000

// handleVersion handles the /version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := s.writeJSON(w, http.StatusOK, version.GetInfo()); err != nil {
		s.logger.WithError(err).Error("Failed to encode version response")
	}
}

func (s *Server) handleListContainers(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, apperrors.New(apperrors.ErrorTypeServiceDown, "container registry not configured"))
		return
	}

	var (
		snaps []*registry.ContainerSnapshot
		resp  ContainerListResponse
		err   error
	)
	pager, paged := s.store.(registry.Pager)
	query := r.URL.Query()
	if paged && (query.Has("count") || query.Has("cursor")) {
		cursor, count, perr := pageParams(query.Get("cursor"), query.Get("count"))
		if perr != nil {
			s.writeError(w, r, perr)
			return
		}
		var next uint64
		snaps, next, err = pager.ListPaginated(r.Context(), cursor, count)
		resp.NextCursor = strconv.FormatUint(next, 10)
	} else {
		snaps, err = s.store.List(r.Context())
	}
	if err != nil {
		s.writeError(w, r, apperrors.Wrap(err, apperrors.ErrorTypeServiceDown, "container registry unavailable"))
		return
	}

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := snaps[:0]
		for _, snap := range snaps {
			if string(snap.State) == state {
				filtered = append(filtered, snap)
			}
		}
		snaps = filtered
	}
	if snaps == nil {
		snaps = []*registry.ContainerSnapshot{}
	}

	resp.Containers = snaps
	resp.Count = len(snaps)
	if err := s.writeJSON(w, http.StatusOK, resp); err != nil {
		s.logger.WithError(err).Error("Failed to encode container list")
	}
}

func pageParams(cursorParam, countParam string) (uint64, int64, error) {
	var cursor uint64
	if cursorParam != "" {
		c, err := strconv.ParseUint(cursorParam, 10, 64)
		if err != nil {
			return 0, 0, apperrors.NewInvalidArgument("invalid cursor %q", cursorParam)
		}
		cursor = c
	}

	count := int64(100)
	if countParam != "" {
		c, err := strconv.ParseInt(countParam, 10, 64)
		if err != nil || c <= 0 || c > maxPageSize {
			return 0, 0, apperrors.NewInvalidArgument("count must be between 1 and %d", maxPageSize)
		}
		count = c
	}
	return cursor, count, nil
}

func (s *Server) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.writeJSON(w, http.StatusOK, snap); err != nil {
		s.logger.WithError(err).Error("Failed to encode container")
	}
}

func (s *Server) handleContainerStreams(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.lookup(w, r)
	if !ok {
		return
	}
	streams := snap.Streams
	if streams == nil {
		streams = []registry.StreamSnapshot{}
	}
	if err := s.writeJSON(w, http.StatusOK, streams); err != nil {
		s.logger.WithError(err).Error("Failed to encode container streams")
	}
}

func (s *Server) handleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, apperrors.New(apperrors.ErrorTypeServiceDown, "container registry not configured"))
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	logger.FromContext(logger.WithContainer(r.Context(), id)).Info("Container snapshot deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*registry.ContainerSnapshot, bool) {
	if s.store == nil {
		s.writeError(w, r, apperrors.New(apperrors.ErrorTypeServiceDown, "container registry not configured"))
		return nil, false
	}
	id := mux.Vars(r)["id"]
	snap, err := s.store.Get(r.Context(), id)
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			err = apperrors.Wrap(err, apperrors.ErrorTypeServiceDown, "container registry unavailable")
		}
		s.writeError(w, r, err)
		return nil, false
	}
	return snap, true
}

// writeJSON is a helper to write JSON responses
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// writeError is a helper to write error responses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r, err)
}
