// internal/i18n/i18n.go
package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type I18n struct {
	mu           sync.RWMutex
	translations map[string]map[string]string
	defaultLang  string
}

var instance *I18n
var once sync.Once

// Built-in English strings. Locale files under localesPath overlay these.
var builtinEN = map[string]string{
	"auth.required":                   "Authentication required",
	"auth.invalid_token":              "Invalid authentication token",
	"auth.token_expired":              "Authentication token has expired",
	"order.created":                   "Order created successfully",
	"order.not_found":                 "Order not found",
	"order.already_paid":              "Order has already been paid",
	"payment.initiated":               "Payment initiated",
	"payment.success":                 "Payment confirmed successfully",
	"payment.failed":                  "Payment failed",
	"payment.pending":                 "Payment is still pending",
	"payment.amount_mismatch":         "Paid amount does not match the expected total",
	"payment.not_found":               "Transaction not found",
	"refund.requested":                "Refund request submitted",
	"refund.approved":                 "Refund approved",
	"refund.rejected":                 "Refund rejected",
	"refund.processed":                "Refund processed successfully",
	"refund.window_elapsed":           "Refund window has elapsed",
	"refund.already_requested":        "A refund request already exists for this transaction",
	"refund.invalid_state":            "Transaction is not in a refundable state",
	"withdrawal.success":              "Withdrawal submitted successfully",
	"withdrawal.insufficient_balance": "Insufficient balance for withdrawal",
	"withdrawal.invalid_pin":          "Invalid transaction PIN",
	"withdrawal.no_recipient":         "No payout recipient configured",
	"withdrawal.account_mismatch":     "Bank account details do not match",
	"withdrawal.gateway_failed":       "Payout could not be completed",
	"admin.action_success":            "Action completed successfully",
	"admin.access_denied":             "Admin access required",
	"validation.required":             "%s is required",
	"validation.invalid":              "Invalid %s",
}

func Initialize(localesPath string) error {
	var err error
	once.Do(func() {
		instance = &I18n{
			translations: map[string]map[string]string{"en": builtinEN},
			defaultLang:  "en",
		}
		err = instance.LoadTranslations(localesPath)
	})
	return err
}

// LoadTranslations overlays locale files onto the built-in strings.
// Missing files are skipped so a bare checkout still serves English.
func (i *I18n) LoadTranslations(localesPath string) error {
	entries, err := os.ReadDir(localesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read locales dir %s: %w", localesPath, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		lang := strings.TrimSuffix(entry.Name(), ".json")

		data, err := os.ReadFile(filepath.Join(localesPath, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read locale file %s: %w", entry.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("failed to unmarshal locale file %s: %w", entry.Name(), err)
		}

		i.mu.Lock()
		if existing, ok := i.translations[lang]; ok {
			for k, v := range translations {
				existing[k] = v
			}
		} else {
			i.translations[lang] = translations
		}
		i.mu.Unlock()
	}

	return nil
}

func (i *I18n) T(lang, key string, args ...interface{}) string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	// Try to get translation for requested language
	if translations, exists := i.translations[lang]; exists {
		if text, exists := translations[key]; exists {
			if len(args) > 0 {
				return fmt.Sprintf(text, args...)
			}
			return text
		}
	}

	// Fallback to default language
	if lang != i.defaultLang {
		if translations, exists := i.translations[i.defaultLang]; exists {
			if text, exists := translations[key]; exists {
				if len(args) > 0 {
					return fmt.Sprintf(text, args...)
				}
				return text
			}
		}
	}

	// Return key if no translation found
	return key
}

// Global functions
func T(lang, key string, args ...interface{}) string {
	if instance != nil {
		return instance.T(lang, key, args...)
	}
	return key
}

func GetSupportedLanguages() []string {
	if instance == nil {
		return []string{"en"}
	}

	instance.mu.RLock()
	defer instance.mu.RUnlock()

	langs := make([]string, 0, len(instance.translations))
	for lang := range instance.translations {
		langs = append(langs, lang)
	}
	return langs
}
