package handler

import (
	"net/http"

	"github.com/linguachat/internal/language"
)

// LanguageHandler отдаёт статический каталог поддерживаемых языков.
type LanguageHandler struct{}

func NewLanguageHandler() *LanguageHandler { return &LanguageHandler{} }

// List возвращает каталог языков (без авторизации, фронт рисует из него выбор).
func (h *LanguageHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, language.All())
}
