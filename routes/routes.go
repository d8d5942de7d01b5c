package routes

import (
	"pfe-management-api/controllers"
	"pfe-management-api/middleware"
	"pfe-management-api/models"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			// Authentication
			public.POST("/login", controllers.Login)
			public.POST("/forgot-password", controllers.ForgotPassword)
			public.POST("/reset-password", controllers.ResetPassword)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "PFE Management API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User profile
			protected.GET("/profile", controllers.GetProfile)
			protected.PUT("/change-password", controllers.ChangePassword)

			// Projects
			projects := protected.Group("/projects")
			{
				projects.GET("", controllers.GetProjects)
				projects.GET("/:id", controllers.GetProject)

				// Submitting roles can register projects
				projects.POST("", middleware.RequireRole(
					models.RoleTeacher, models.RoleStudent, models.RoleCompany,
				), controllers.CreateProject)
				projects.PUT("/:id", controllers.UpdateProject)
			}

			// Project proposals: the negotiation surface
			proposals := protected.Group("/project-proposals")
			{
				proposals.GET("", controllers.GetProposals)
				proposals.GET("/:id", controllers.GetProposal)

				proposals.POST("", middleware.RequireRole(
					models.RoleTeacher, models.RoleStudent, models.RoleCompany,
				), controllers.CreateProposal)

				// Review cycle
				proposals.POST("/:id/edit", middleware.RequireRole(models.RoleTeacher), controllers.SubmitProposalEdit)
				proposals.POST("/:id/respond", controllers.RespondToProposalEdit)
				proposals.POST("/:id/final", controllers.MarkProposalFinal)
				proposals.DELETE("/:id", controllers.WithdrawProposal)

				// Terminal decisions are reserved to responsible teachers
				proposals.POST("/:id/decide", middleware.RequireResponsibleTeacher(), controllers.DecideProposal)
			}

			// Student pairs
			pairs := protected.Group("/student-pairs")
			{
				pairs.POST("", middleware.RequireRole(models.RoleStudent), controllers.CreateStudentPair)
				pairs.POST("/:id/respond", middleware.RequireRole(models.RoleStudent), controllers.RespondToStudentPair)
				pairs.DELETE("/:id", controllers.DeleteStudentPair)
			}

			// Notifications
			notifications := protected.Group("/notifications")
			{
				notifications.GET("", controllers.GetNotifications)
				notifications.PATCH("/:id/read", controllers.MarkNotificationRead)
			}
		}
	}
}
