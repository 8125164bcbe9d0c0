package usecase

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys double as the English text.
const (
	msgParseFailed   = "Failed to parse the torrent file"
	msgNotFound      = "Torrent not found"
	msgFileIndex     = "No file with this index"
	msgInitFailed    = "Failed to initialize the torrent"
	msgServerFailed  = "Failed to start the stream server"
	msgDestroyFailed = "Failed to stop and destroy the torrent"
)

var (
	messageCatalog = newMessageCatalog()
	// English first: the matcher falls back to index 0.
	supportedLocales = []language.Tag{language.English, language.Russian}
	localeMatcher    = language.NewMatcher(supportedLocales)
)

func newMessageCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	ru := map[string]string{
		msgParseFailed:   "Произошла ошибка при парсинге торрент-файла",
		msgNotFound:      "Торрент не найден",
		msgFileIndex:     "Файл с таким порядковым номером не обнаружен",
		msgInitFailed:    "Произошла ошибка при инициализации торрент-файла",
		msgServerFailed:  "Произошла ошибка при запуске сервера",
		msgDestroyFailed: "Произошла ошибка при остановке и уничтожении торрент-файла",
	}
	for key, text := range ru {
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.Russian, key, text)
	}
	return b
}

// Messages renders error event messages in one locale.
type Messages struct {
	printer *message.Printer
}

// NewMessages returns a renderer for locale, falling back to English for
// unknown or unsupported tags.
func NewMessages(locale string) *Messages {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	_, idx, _ := localeMatcher.Match(tag)
	return &Messages{
		printer: message.NewPrinter(supportedLocales[idx], message.Catalog(messageCatalog)),
	}
}

func (m *Messages) Text(key string) string {
	if m == nil || m.printer == nil {
		return key
	}
	return m.printer.Sprintf(key)
}
