// search.go — обработчик поиска по метаданным файлов.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/file-vault/internal/api/errors"
	"github.com/bigkaa/goartstore/file-vault/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
)

// Searcher — поиск по файлам владельца.
type Searcher interface {
	Search(ctx context.Context, ownerID, query string) ([]model.SearchMatch, error)
}

// SearchHandler — обработчик POST /search.
type SearchHandler struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewSearchHandler создаёт обработчик поиска.
func NewSearchHandler(searcher Searcher, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		logger:   logger.With(slog.String("component", "search_handler")),
	}
}

type searchRequest struct {
	Query string `json:"query" validate:"max=1000"`
}

type searchResult struct {
	File      fileResponse `json:"file"`
	MatchedOn string       `json:"matchedOn"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Search обрабатывает POST /search. Пустой запрос или пустое тело —
// пустой результат.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	var req searchRequest
	if !decodeOptionalAndValidate(w, r, &req) {
		return
	}

	matches, err := h.searcher.Search(r.Context(), subject, req.Query)
	if err != nil {
		h.logger.Error("Ошибка поиска",
			slog.String("owner_id", subject),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	results := make([]searchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, searchResult{
			File:      toFileResponse(m.File),
			MatchedOn: string(m.MatchedOn),
		})
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}
