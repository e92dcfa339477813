// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thriftbay/marketplace-backend/internal/i18n"
)

// I18nMiddleware resolves the response language from the Accept-Language
// header and stores it in the request context.
func I18nMiddleware() gin.HandlerFunc {
	supported := i18n.GetSupportedLanguages()

	return func(c *gin.Context) {
		lang := "en"

		header := c.GetHeader("Accept-Language")
		if header != "" {
			// Take the first language tag, ignoring quality values.
			candidate := strings.TrimSpace(strings.Split(strings.Split(header, ",")[0], ";")[0])
			for _, s := range supported {
				if strings.EqualFold(candidate, s) {
					lang = s
					break
				}
			}
		}

		c.Set("lang", lang)
		c.Next()
	}
}
