package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/middleware"
	"github.com/kendall-kelly/service-spot-api/models"
)

// RegisterRoutes mounts every API endpoint on rg (normally /api/v1)
func (a *API) RegisterRoutes(rg *gin.RouterGroup) {
	requireSession := middleware.RequireSession(a.identity)

	auth := rg.Group("/auth")
	{
		auth.POST("/signup", a.Signup)
		auth.POST("/login", a.Login)
		auth.POST("/logout", requireSession, a.Logout)
		auth.GET("/me", requireSession, a.Me)
	}

	// Offerings, reviews and ratings are public to browse
	rg.GET("/offerings/:id", a.GetOffering)
	rg.GET("/providers/:id/offerings", a.ListProviderOfferings)
	rg.GET("/providers/:id/reviews", a.ListProviderReviews)
	rg.GET("/providers/:id/rating", a.GetProviderRating)

	authed := rg.Group("", requireSession)
	{
		authed.POST("/offerings", a.CreateOffering)
		authed.POST("/offerings/:id/image", a.UploadOfferingImage)

		authed.POST("/bookings", a.CreateBooking)
		authed.GET("/bookings", a.ListBookings)
		authed.GET("/bookings/:id", a.GetBooking)
		authed.POST("/bookings/:id/transitions", a.TransitionBooking)

		authed.POST("/reviews", a.CreateReview)
	}

	admin := rg.Group("/admin", requireSession, middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/principals", a.ListPrincipals)
		admin.GET("/principals/pending", a.ListPendingProviders)
		admin.POST("/principals/:id/verify", a.VerifyPrincipal())
		admin.POST("/principals/:id/suspend", a.SuspendPrincipal())
		admin.POST("/principals/:id/reactivate", a.ReactivatePrincipal())
		admin.POST("/principals/:id/delete-preview", a.PreviewDeletePrincipal)
		admin.POST("/principals/:id/delete", a.DeletePrincipal)
		admin.GET("/statistics", a.GetPlatformStatistics)
	}
}
