package api

import (
	"errors"
	"unsafe"

	"github.com/labstack/echo/v4"

	"tarefas-api/domain"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const sessionCookieName = "session"

var bearerPrefix = [...]byte{'B', 'e', 'a', 'r', 'e', 'r', ' '}

// sessionFromRequest resolves the session from whichever credential the
// request carries: the Authorization header, the session cookie (page loads),
// or the token query param (EventSource cannot set headers).
func sessionFromRequest(c echo.Context, auth Authenticator) (domain.Session, error) {
	if raw := c.Request().Header.Get(echo.HeaderAuthorization); raw != "" {
		token, err := bearerTokenFromString(raw)
		if err != nil {
			return domain.Session{}, err
		}
		return auth.SessionFromBearer(token)
	}
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return auth.SessionFromBearer(readOnlyBytes(cookie.Value))
	}
	if token := c.QueryParam("token"); token != "" {
		return auth.SessionFromBearer(readOnlyBytes(token))
	}
	return domain.Session{}, errMissingAuthorization
}

func bearerTokenFromString(raw string) ([]byte, error) {
	start := 0
	end := len(raw)
	for start < end && raw[start] == ' ' {
		start++
	}
	for end > start && raw[end-1] == ' ' {
		end--
	}
	if start >= end {
		return nil, errMissingAuthorization
	}
	trimmed := raw[start:end]
	tokenBytes := readOnlyBytes(trimmed)
	if len(tokenBytes) <= len(bearerPrefix) {
		return nil, errBadAuthorization
	}
	if !hasBearerPrefix(tokenBytes) {
		return nil, errBadAuthorization
	}
	tokenBytes = tokenBytes[len(bearerPrefix):]
	if countByte(tokenBytes, '.') != 2 {
		return nil, errBadAuthorization
	}
	return tokenBytes, nil
}

func hasBearerPrefix(value []byte) bool {
	if len(value) < len(bearerPrefix) {
		return false
	}
	for i := range bearerPrefix {
		if value[i] != bearerPrefix[i] {
			return false
		}
	}
	return true
}

func countByte(buf []byte, target byte) int {
	count := 0
	for _, b := range buf {
		if b == target {
			count++
		}
	}
	return count
}

func readOnlyBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func readOnlyString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
