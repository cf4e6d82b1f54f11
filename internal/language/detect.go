package language

import "github.com/abadojack/whatlanggo"

// Detect определяет язык текста, когда отправитель не указал код.
// Возвращает код из каталога; если определить не удалось или язык
// вне каталога — fallback (обычно язык чата).
func Detect(text, fallback string) string {
	if text == "" {
		return fallback
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return fallback
	}
	code := info.Lang.Iso6391()
	if !Known(code) {
		return fallback
	}
	return code
}
