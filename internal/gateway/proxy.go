package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/gateway/internal/config"
	"github.com/nao1215/gateway/pkg/middleware"
	"go.uber.org/zap"
)

// proxyRoute はパス接頭辞と転送先の組。
type proxyRoute struct {
	route config.Route
	// target は転送先のベースURL。クラスタに宛先が無い場合はnil。
	target  *url.URL
	handler http.Handler
}

// reverseProxy は設定されたルートに従ってリクエストを内部サービスへ転送する。
type reverseProxy struct {
	// routes はパス接頭辞の長い順に並んでいる。
	routes []proxyRoute
}

// newReverseProxy はルートとクラスタの構成からリバースプロキシを生成する。
// 転送先はクラスタ内で最初にアドレスが設定された宛先とする。
func newReverseProxy(cfg *config.Config, logger *zap.Logger) (*reverseProxy, error) {
	p := &reverseProxy{}
	for _, r := range cfg.ReverseProxy.Routes {
		cluster, ok := cfg.Cluster(r.ClusterID)
		if !ok {
			return nil, fmt.Errorf("ルート %q が未定義のクラスタを参照しています: %q", r.Name, r.ClusterID)
		}

		pr := proxyRoute{route: r}
		for _, d := range cluster.Destinations {
			if d.Address == "" {
				continue
			}
			target, err := url.Parse(d.Address)
			if err != nil {
				return nil, fmt.Errorf("宛先アドレスが不正です: cluster=%s, destination=%s: %w", cluster.Name, d.Name, err)
			}
			pr.target = target
			pr.handler = newSingleHostProxy(r, target, logger)
			break
		}
		p.routes = append(p.routes, pr)
	}

	sort.SliceStable(p.routes, func(i, j int) bool {
		return len(p.routes[i].route.Path) > len(p.routes[j].route.Path)
	})
	return p, nil
}

// newSingleHostProxy はtargetへ転送するhttputil.ReverseProxyを生成する。
func newSingleHostProxy(r config.Route, target *url.URL, logger *zap.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			// 受信したX-User-IDは信用せず、検証済みのトークンから設定し直す
			pr.Out.Header.Del("X-User-ID")
			if userID, ok := pr.In.Context().Value(userIDContextKey{}).(string); ok && userID != "" {
				pr.Out.Header.Set("X-User-ID", userID)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			logger.Warn("プロキシエラー",
				zap.String("route", r.Name),
				zap.String("cluster", r.ClusterID),
				zap.String("target", target.String()),
				zap.String("path", req.URL.Path),
				zap.Error(err),
			)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"内部サービスとの通信に失敗しました"}`))
		},
	}
}

// userIDContextKey は認証済みユーザーIDをリクエストコンテキストに載せるキー。
type userIDContextKey struct{}

// match はパスに最も長く一致するルートを返す。
// 接頭辞はパス区切りの単位で一致させる（/api/users は /api/usersX に一致しない）。
func (p *reverseProxy) match(path string) (proxyRoute, bool) {
	for _, pr := range p.routes {
		prefix := pr.route.Path
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return pr, true
		}
	}
	return proxyRoute{}, false
}

// ginHandler はルートに一致しなかったリクエストを転送するGinハンドラを返す。
func (p *reverseProxy) ginHandler(auth gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		pr, ok := p.match(c.Request.URL.Path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "ルートが見つかりません"})
			return
		}

		if pr.route.RequireAuth {
			auth(c)
			if c.IsAborted() {
				return
			}
			ctx := context.WithValue(c.Request.Context(), userIDContextKey{}, middleware.GetUserID(c))
			c.Request = c.Request.WithContext(ctx)
		}

		if pr.handler == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "転送先の宛先が設定されていません"})
			return
		}
		pr.handler.ServeHTTP(c.Writer, c.Request)
	}
}
