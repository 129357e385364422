package server

import (
	"net/http"

	apperrors "github.com/atlasdao/painel-sub005/internal/errors"
)

// HandleError writes err as a JSON error envelope. Every handler and the
// router fallbacks report errors through it.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
