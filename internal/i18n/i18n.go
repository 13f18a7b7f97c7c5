// Package i18n holds the localized client-facing messages.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	ModuleNotInstalled = "MODULE_NOT_INSTALLED"
	EntityNotBound     = "ENTITY_NOT_BOUND"
	ItemNotFound       = "ITEM_NOT_FOUND"
	MethodNotAllowed   = "METHOD_NOT_ALLOWED"
	InvalidBody        = "INVALID_BODY"
	StoreFailed        = "STORE_FAILED"
)

var messages = map[language.Tag]map[string]string{
	language.English: {
		ModuleNotInstalled: "Module %s is not installed",
		EntityNotBound:     "Entity %s is not available",
		ItemNotFound:       "Item %s not found",
		MethodNotAllowed:   "Operation %s is not allowed for %s",
		InvalidBody:        "Request body must be a JSON object",
		StoreFailed:        "Storage error while reading %s",
	},
	language.Russian: {
		ModuleNotInstalled: "Модуль %s не установлен",
		EntityNotBound:     "Сущность %s недоступна",
		ItemNotFound:       "Элемент %s не найден",
		MethodNotAllowed:   "Операция %s недоступна для %s",
		InvalidBody:        "Тело запроса должно быть JSON-объектом",
		StoreFailed:        "Ошибка хранилища при обращении к %s",
	},
}

var (
	cat     = build()
	langs   = cat.Languages()
	matcher = language.NewMatcher(langs)
)

func build() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range messages {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Printer returns a printer for lang, falling back to English.
func Printer(lang string) *message.Printer {
	tag := language.English
	if lang != "" {
		if parsed, err := language.Parse(lang); err == nil {
			_, idx, conf := matcher.Match(parsed)
			if conf != language.No {
				tag = langs[idx]
			}
		}
	}
	return message.NewPrinter(tag, message.Catalog(cat))
}

// Sprintf formats the message key in lang.
func Sprintf(lang, key string, args ...any) string {
	return Printer(lang).Sprintf(key, args...)
}
