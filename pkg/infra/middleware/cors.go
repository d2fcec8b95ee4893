package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	corsopts "github.com/kart-io/docqa/pkg/options/cors"
)

// CORS returns a middleware that allows any origin.
func CORS() gin.HandlerFunc {
	return CORSWithOptions(corsopts.NewOptions())
}

// CORSWithOptions returns a CORS middleware built from opts.
// 预检请求直接以 204 结束，不进入后续处理器。
func CORSWithOptions(opts *corsopts.Options) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     opts.AllowMethods,
		AllowHeaders:     opts.AllowHeaders,
		ExposeHeaders:    opts.ExposeHeaders,
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	}
	if opts.AllowAll() {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = opts.AllowOrigins
	}
	return cors.New(cfg)
}
