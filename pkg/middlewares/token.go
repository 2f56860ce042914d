package middlewares

import (
	t_token "realtime_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	// QueryToken token in query name
	QueryToken = "auth"

	// ResumeUsername username recovered from a resume token, set c.locals name
	ResumeUsername = "ResumeUsername"
)

// ResumeTokenMiddleware picks up an optional resume token on the ws upgrade.
// 沒有 token 或 token 無效時照樣放行，client 需重新 announce。
func ResumeTokenMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Query(QueryToken)
		if tokenStr == "" {
			return c.Next()
		}

		claims, err := t_token.ParseResumeToken(tokenStr)
		if err != nil {
			// 過期或偽造的 token 不中斷連線，只忽略
			return c.Next()
		}

		c.Locals(ResumeUsername, claims.Username)
		return c.Next()
	}
}
