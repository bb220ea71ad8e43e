package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := NewToken("secret", 42, 5)
	require.NoError(t, err)

	claims, err := ParseToken("secret", tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)

	_, err = ParseToken("other", tok)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	tok, err := NewToken("secret", 1, -1)
	require.NoError(t, err)
	_, err = ParseToken("secret", tok)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "hunter2"))
	assert.False(t, CheckPassword(h, "hunter3"))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTMiddleware("secret"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": MustUserID(c)})
	})
	tok, err := NewToken("secret", 7, 5)
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		query  string
		code   int
	}{
		"missing": {code: http.StatusUnauthorized},
		"invalid": {header: "Bearer nope", code: http.StatusUnauthorized},
		"header":  {header: "Bearer " + tok, code: http.StatusOK},
		"query":   {query: "?token=" + tok, code: http.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}
