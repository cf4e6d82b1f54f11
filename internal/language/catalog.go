// Package language содержит статический каталог языков чата.
// Каталог неизменяемый и общий на процесс; коды валидируются на границе —
// неизвестный код это типизированная ошибка, а не доверенная строка.
package language

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownLanguage = errors.New("unknown language code")

// Language — неизменяемое значение {код ISO-639-ish, название}.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var catalog = map[string]Language{
	"en":  {Code: "en", Name: "English"},
	"es":  {Code: "es", Name: "Spanish"},
	"fr":  {Code: "fr", Name: "French"},
	"de":  {Code: "de", Name: "German"},
	"zh":  {Code: "zh", Name: "Chinese"},
	"sw":  {Code: "sw", Name: "Swahili"},
	"ar":  {Code: "ar", Name: "Arabic"},
	"ha":  {Code: "ha", Name: "Hausa"},
	"om":  {Code: "om", Name: "Oromo"},
	"ig":  {Code: "ig", Name: "Igbo"},
	"am":  {Code: "am", Name: "Amharic"},
	"pt":  {Code: "pt", Name: "Portuguese"},
	"so":  {Code: "so", Name: "Somali"},
	"sn":  {Code: "sn", Name: "Shona"},
	"ber": {Code: "ber", Name: "Berber"},
	"yo":  {Code: "yo", Name: "Yoruba"},
	"ff":  {Code: "ff", Name: "Fulani"},
	"zu":  {Code: "zu", Name: "Zulu"},
	"pcm": {Code: "pcm", Name: "Pidgin English"},
}

// ByCode возвращает язык по коду или ErrUnknownLanguage.
func ByCode(code string) (Language, error) {
	l, ok := catalog[code]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	return l, nil
}

// Known сообщает, есть ли код в каталоге.
func Known(code string) bool {
	_, ok := catalog[code]
	return ok
}

// All возвращает каталог, отсортированный по коду (стабильный порядок для API).
func All() []Language {
	out := make([]Language, 0, len(catalog))
	for _, l := range catalog {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
