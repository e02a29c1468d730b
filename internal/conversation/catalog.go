package conversation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Languages are the supported language tags, in menu order.
var Languages = []string{"en", "lv", "ru"}

// DefaultLanguage is used when a selection is not recognized.
const DefaultLanguage = "en"

// languageButtons are shown in the language keyboard, one per tag.
var languageButtons = []string{"English", "Latviešu", "Русский"}

// DetectLanguage maps a language button or tag to a language tag.
func DetectLanguage(selection string) string {
	s := strings.ToLower(strings.TrimSpace(selection))
	switch {
	case s == "lv" || strings.Contains(s, "latvie"):
		return "lv"
	case s == "ru" || strings.Contains(s, "русск"):
		return "ru"
	default:
		return DefaultLanguage
	}
}

// Catalog looks up user-facing text. Keys missing in a language fall back to
// English and then to the key itself.
type Catalog interface {
	Text(lang, key string, args ...any) string
}

// MapCatalog is a Catalog backed by nested maps: language, then key.
type MapCatalog map[string]map[string]string

// Text implements Catalog. With args the message is treated as a format.
func (c MapCatalog) Text(lang, key string, args ...any) string {
	msg, ok := c[lang][key]
	if !ok {
		msg, ok = c[DefaultLanguage][key]
	}
	if !ok {
		msg = key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// DefaultCatalog returns the built-in English messages.
func DefaultCatalog() MapCatalog {
	en := make(map[string]string, len(englishMessages))
	for k, v := range englishMessages {
		en[k] = v
	}
	return MapCatalog{DefaultLanguage: en}
}

// LoadCatalog reads a YAML (or JSON) translations file laid out as
// {"<lang>": {"<key>": "<text>"}} and overlays it on the built-in messages.
// An empty path returns the built-in catalog.
func LoadCatalog(path string) (MapCatalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read translations: %w", err)
	}
	var file map[string]map[string]string
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode translations %s: %w", path, err)
	}
	for lang, msgs := range file {
		if cat[lang] == nil {
			cat[lang] = make(map[string]string, len(msgs))
		}
		for k, v := range msgs {
			cat[lang][k] = v
		}
	}
	return cat, nil
}

var englishMessages = map[string]string{
	"start":                   "Welcome! You can register for the event here.",
	"select_language":         "Please select your language.",
	"no_event_selected":       "No event is selected yet. Open a registration link to choose one.",
	"invalid_link":            "This registration link is invalid.",
	"event_not_found":         "Event not found.",
	"event_full":              "Sorry, this event is fully booked.",
	"main_menu":               "Main menu. Choose an option.",
	"register":                "Register",
	"retrieve":                "My registrations",
	"change_language":         "Change language",
	"cancel_registration":     "Cancel registration",
	"invalid_option":          "Invalid option. Please use the menu.",
	"ask_name":                "Please enter your first and last name.",
	"ask_email":               "Please enter your email address.",
	"invalid_email":           "That does not look like an email address. Please try again.",
	"ask_cust_amount":         "How many people will attend?",
	"invalid_number":          "Please enter a positive whole number.",
	"not_enough_spots":        "Only %d seats are left. Please enter a smaller number.",
	"spots_taken":             "The remaining seats were just taken. Only %d seats are left.",
	"registration_failed":     "Registration could not be completed. Please try again later.",
	"registration_complete":   "Registration complete! Your invoice number is %s.",
	"invoice_failed":          "Your registration is saved, but the invoice could not be generated.",
	"no_registrations":        "You have no registrations yet.",
	"pdf_not_found":           "Invoice file not found.",
	"storage_error":           "The service is temporarily unavailable. Please try again later.",
	"provide_invoice":         "Please enter the invoice number of the registration to cancel.",
	"invalid_invoice":         "Invoice number not found.",
	"already_canceled":        "This registration is already canceled.",
	"cancellation_successful": "Your registration has been canceled.",
	"cancellation_failed":     "Cancellation failed. Please try again later.",
	"summary":                 "Registration summary",
	"event_summary":           "Event details",
	"game":                    "Event",
	"place":                   "Place",
	"date":                    "Date",
	"time":                    "Time",
	"price_per_person":        "Price per person",
	"spots_left":              "Seats left",
	"name":                    "Name",
	"email":                   "Email",
	"attendees":               "Attendees",
	"total_price":             "Total price",
	"invoice_number":          "Invoice number",
	"canceled":                "Canceled",
	"new_registration":        "New registration",
	"registration_canceled":   "Registration canceled",
}
