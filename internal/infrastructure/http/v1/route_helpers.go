// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// ResourceRouteHandler defines the CRUD surface shared by products and machines.
type ResourceRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
}

// RegisterResourceRoutes registers the standard routes for a resource group.
//
// Usage:
//
//	handler := handlers.NewProductHandler(baseHandler, cfg.Products)
//	RegisterResourceRoutes(api.Group("/products"), handler)
func RegisterResourceRoutes(group *gin.RouterGroup, handler ResourceRouteHandler) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
}
