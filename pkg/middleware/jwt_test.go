package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTConfig はテスト用のJWT設定。
var testJWTConfig = JWTConfig{
	Secret:   "test-secret-key-for-unit-tests",
	Issuer:   "gateway-test",
	Audience: "gateway-clients",
}

// newJWTRouter はJWTAuthを適用した/testルートを持つルーターを生成する。
func newJWTRouter(cfg JWTConfig, handler gin.HandlerFunc) *gin.Engine {
	if handler == nil {
		handler = func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		}
	}
	router := gin.New()
	router.Use(JWTAuth(cfg))
	router.GET("/test", handler)
	return router
}

// doAuthRequest は指定したAuthorizationヘッダーで/testにGETリクエストを送る。
func doAuthRequest(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// errorMessage はJSONレスポンスのerrorフィールドを取り出す。
func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v", err)
	}
	return body["error"]
}

// signClaims は任意のクレームでトークンを署名する。
func signClaims(t *testing.T, claims JWTClaims, secret string) string {
	t.Helper()

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return tokenStr
}

// TestGenerateJWT はGenerateJWT関数を検証する。
func TestGenerateJWT(t *testing.T) {
	t.Parallel()

	t.Run("設定した発行者と受信者がクレームに含まれること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testJWTConfig, "user-123", "test@example.com")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testJWTConfig.Secret), nil
		})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if !token.Valid {
			t.Fatal("トークンが無効")
		}

		if claims.UserID != "user-123" {
			t.Errorf("UserID = %q, want %q", claims.UserID, "user-123")
		}
		if claims.Email != "test@example.com" {
			t.Errorf("Email = %q, want %q", claims.Email, "test@example.com")
		}
		if claims.Issuer != "gateway-test" {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, "gateway-test")
		}
		if len(claims.Audience) != 1 || claims.Audience[0] != "gateway-clients" {
			t.Errorf("Audience = %v, want [gateway-clients]", claims.Audience)
		}
	})

	t.Run("TTL未指定の場合は有効期限が24時間後であること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr, err := GenerateJWT(testJWTConfig, "user-exp", "exp@example.com")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}

		expected := before.Add(24 * time.Hour)
		if d := claims.ExpiresAt.Time.Sub(expected); d < -time.Minute || d > time.Minute {
			t.Errorf("ExpiresAt = %v, want %v ± 1m", claims.ExpiresAt.Time, expected)
		}
	})

	t.Run("TTLを指定した場合はその有効期間になること", func(t *testing.T) {
		t.Parallel()

		cfg := testJWTConfig
		cfg.TTL = time.Hour
		tokenStr, err := GenerateJWT(cfg, "user-ttl", "ttl@example.com")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != time.Hour {
			t.Errorf("有効期間 = %v, want %v", got, time.Hour)
		}
	})

	t.Run("署名アルゴリズムがHS256であること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testJWTConfig, "user-alg", "alg@example.com")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		token, _, err := jwt.NewParser().ParseUnverified(tokenStr, &JWTClaims{})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if token.Method.Alg() != "HS256" {
			t.Errorf("署名アルゴリズム = %q, want %q", token.Method.Alg(), "HS256")
		}
	})
}

// TestJWTAuth はJWTAuthミドルウェアを検証する。
func TestJWTAuth(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでユーザー情報がコンテキストとヘッダーに設定されること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testJWTConfig, "user-ok", "ok@example.com")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		var capturedUserID, capturedEmail string
		router := newJWTRouter(testJWTConfig, func(c *gin.Context) {
			capturedUserID = GetUserID(c)
			if v, ok := c.Get("email"); ok {
				capturedEmail, _ = v.(string)
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		w := doAuthRequest(router, "Bearer "+tokenStr)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if capturedUserID != "user-ok" {
			t.Errorf("user_id = %q, want %q", capturedUserID, "user-ok")
		}
		if capturedEmail != "ok@example.com" {
			t.Errorf("email = %q, want %q", capturedEmail, "ok@example.com")
		}
		if got := w.Header().Get("X-User-ID"); got != "user-ok" {
			t.Errorf("X-User-ID = %q, want %q", got, "user-ok")
		}
	})

	t.Run("Authorizationヘッダーが無い場合401が返ること", func(t *testing.T) {
		t.Parallel()

		w := doAuthRequest(newJWTRouter(testJWTConfig, nil), "")

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := errorMessage(t, w); got != "Authorizationヘッダーが必要です" {
			t.Errorf("error = %q, want %q", got, "Authorizationヘッダーが必要です")
		}
	})

	t.Run("Bearer接頭辞が無い場合401が返ること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testJWTConfig, "user-nobearer", "nobearer@example.com")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		w := doAuthRequest(newJWTRouter(testJWTConfig, nil), tokenStr)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := errorMessage(t, w); got != "Bearer トークン形式が不正です" {
			t.Errorf("error = %q, want %q", got, "Bearer トークン形式が不正です")
		}
	})

	now := time.Now()
	rejected := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "形式が不正なトークン",
			token: func(*testing.T) string { return "invalid-token-string" },
		},
		{
			name: "異なるシークレットで署名されたトークン",
			token: func(t *testing.T) string {
				cfg := testJWTConfig
				cfg.Secret = "different-secret"
				tokenStr, err := GenerateJWT(cfg, "user-diff", "diff@example.com")
				if err != nil {
					t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
				}
				return tokenStr
			},
		},
		{
			name: "期限切れトークン",
			token: func(t *testing.T) string {
				return signClaims(t, JWTClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
						IssuedAt:  jwt.NewNumericDate(now.Add(-25 * time.Hour)),
						Issuer:    testJWTConfig.Issuer,
						Audience:  jwt.ClaimStrings{testJWTConfig.Audience},
					},
					UserID: "user-expired",
				}, testJWTConfig.Secret)
			},
		},
		{
			name: "有効期限を持たないトークン",
			token: func(t *testing.T) string {
				return signClaims(t, JWTClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:   testJWTConfig.Issuer,
						Audience: jwt.ClaimStrings{testJWTConfig.Audience},
					},
					UserID: "user-noexp",
				}, testJWTConfig.Secret)
			},
		},
		{
			name: "発行者が異なるトークン",
			token: func(t *testing.T) string {
				cfg := testJWTConfig
				cfg.Issuer = "someone-else"
				tokenStr, err := GenerateJWT(cfg, "user-iss", "iss@example.com")
				if err != nil {
					t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
				}
				return tokenStr
			},
		},
		{
			name: "受信者が異なるトークン",
			token: func(t *testing.T) string {
				cfg := testJWTConfig
				cfg.Audience = "other-audience"
				tokenStr, err := GenerateJWT(cfg, "user-aud", "aud@example.com")
				if err != nil {
					t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
				}
				return tokenStr
			},
		},
	}
	for _, tt := range rejected {
		t.Run(tt.name+"で401が返ること", func(t *testing.T) {
			t.Parallel()

			w := doAuthRequest(newJWTRouter(testJWTConfig, nil), "Bearer "+tt.token(t))

			if w.Code != http.StatusUnauthorized {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if got := errorMessage(t, w); got != "トークンが無効です" {
				t.Errorf("error = %q, want %q", got, "トークンが無効です")
			}
		})
	}

	t.Run("発行者と受信者が未設定の場合は照合しないこと", func(t *testing.T) {
		t.Parallel()

		cfg := JWTConfig{Secret: testJWTConfig.Secret}
		tokenStr, err := GenerateJWT(testJWTConfig, "user-any", "any@example.com")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		w := doAuthRequest(newJWTRouter(cfg, nil), "Bearer "+tokenStr)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestGetUserID はGetUserID関数を検証する。
func TestGetUserID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		set   bool
		want  string
	}{
		{name: "user_idが設定されている場合に取得できること", value: "user-get-id", set: true, want: "user-get-id"},
		{name: "user_idが設定されていない場合に空文字列が返ること", set: false, want: ""},
		{name: "user_idが文字列以外の型の場合に空文字列が返ること", value: 12345, set: true, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			if tt.set {
				c.Set("user_id", tt.value)
			}
			if got := GetUserID(c); got != tt.want {
				t.Errorf("GetUserID() = %q, want %q", got, tt.want)
			}
		})
	}
}
