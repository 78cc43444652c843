// Package routes はGatewayが把握している下流サービスの静的な一覧を提供する。
package routes

// ServiceRoute は下流サービス1件の不変な記述子。
type ServiceRoute struct {
	// Service はサービス名。
	Service string `json:"service"`
	// Path はGatewayが公開するパス接頭辞。
	Path string `json:"path"`
	// Port はサービスのリッスンポート。
	Port int `json:"port"`
}

// knownRoutes は組み込みのサービス一覧。順序は公開APIの一部。
var knownRoutes = [...]ServiceRoute{
	{Service: "Notifications", Path: "/api/notifications", Port: 5001},
	{Service: "Users", Path: "/api/users", Port: 5002},
	{Service: "Storage", Path: "/api/storage", Port: 5003},
	{Service: "Search", Path: "/api/search", Port: 5004},
	{Service: "Newsfeed", Path: "/api/newsfeed", Port: 5005},
	{Service: "Posts", Path: "/api/posts", Port: 5006},
	{Service: "Graph", Path: "/api/graph", Port: 5007},
}

// Registry は読み取り専用のサービス一覧。
type Registry struct{}

// NewRegistry は新しいRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{}
}

// ListRoutes はサービス一覧を固定の順序で返す。
// 返されたスライスは呼び出しごとに新しく確保されるため、変更しても一覧には影響しない。
func (r *Registry) ListRoutes() []ServiceRoute {
	out := make([]ServiceRoute, len(knownRoutes))
	copy(out, knownRoutes[:])
	return out
}
