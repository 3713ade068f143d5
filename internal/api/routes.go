package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, deps Deps) *Handlers {
	h := NewHandlers(deps)

	router.GET("/health", h.HealthCheck)

	v1 := router.Group("/api/v1")

	authPublic := v1.Group("/auth")
	{
		authPublic.GET("/public-key", h.PublicKey)
		authPublic.POST("/login", h.Login)
	}

	// Opened directly by the browser for preview, so the token may come in
	// the query string.
	v1.GET("/case-file/file/:id", h.RequirePreviewAuth(), h.CaseFileContent)

	secured := v1.Group("", h.RequireAuth())

	authGroup := secured.Group("/auth")
	{
		authGroup.POST("/logout", h.Logout)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.GET("/me", h.Me)
	}

	admin := secured.Group("", h.RequireAdmin())

	user := admin.Group("/user")
	{
		user.GET("/list", h.ListUsers)
		user.POST("", h.CreateUser)
		user.GET("/:id", h.GetUser)
		user.PUT("/:id", h.UpdateUser)
		user.DELETE("/:id", h.DeleteUser)
		user.PUT("/:id/status", h.SetUserStatus)
		user.PUT("/:id/password", h.ResetUserPassword)
	}

	admin.GET("/audit/list", h.ListAudit)

	caseFile := secured.Group("/case-file")
	{
		caseFile.POST("/import", h.ImportCaseFiles)
		caseFile.POST("/import/stream", h.ImportCaseFilesStream)
		caseFile.GET("/list", h.ListCaseFiles)
		caseFile.GET("/detail/:id", h.CaseFileDetail)
		caseFile.POST("/search", h.SearchCaseFiles)
		caseFile.GET("/import-tasks", h.ImportTasks)
		caseFile.POST("/re-extract/:id", h.ReExtract)
		caseFile.DELETE("/:id", h.DeleteCaseFile)
	}

	classification := secured.Group("/classification")
	{
		classification.GET("/pending", h.PendingReview)
		classification.GET("/unconfirmed", h.UnconfirmedClassification)
		classification.GET("/tree", h.ClassificationTree)
		classification.POST("/confirm/:id", h.ConfirmClassification)
		classification.POST("/batch-confirm", h.BatchConfirmClassification)
		classification.GET("/case-files/:classificationId", h.ClassificationCaseFiles)
		classification.POST("/save-review/:id", h.SaveReview)
		classification.POST("/archive/:id", h.ArchiveCaseFile)
	}

	ocr := secured.Group("/ocr/tasks")
	{
		ocr.GET("", h.ListOcrTasks)
		ocr.POST("/batch-start", h.BatchStartOcrTasks)
		ocr.GET("/:id", h.GetOcrTask)
		ocr.POST("/:id/start", h.StartOcrTask)
		ocr.POST("/:id/retry", h.RetryOcrTask)
		ocr.PUT("/:id/correct", h.CorrectOcrText)
	}

	template := secured.Group("/template")
	{
		template.GET("", h.ListTemplates)
		template.POST("", h.CreateTemplate)
		template.GET("/doc-types/options", h.DocTypeOptions)
		template.GET("/:id", h.GetTemplate)
		template.PUT("/:id", h.UpdateTemplate)
		template.PUT("/:id/file", h.ReplaceTemplateFile)
		template.DELETE("/:id", h.DeleteTemplate)
	}

	docGen := secured.Group("/doc-generate")
	{
		docGen.POST("/case", h.GenerateCaseDocument)
		docGen.POST("/official", h.GenerateOfficialDocument)
		docGen.POST("/report", h.GenerateReport)
		docGen.POST("/meeting", h.GenerateMeetingMinutes)
		docGen.GET("/templates", h.GenerationTemplates)
		docGen.GET("/tasks", h.GenerationTasks)
		docGen.GET("/status/:taskId", h.GenerationStatus)
		docGen.GET("/export/:taskId", h.ExportDocument)
	}

	review := secured.Group("/content-review")
	{
		review.POST("/review", h.ReviewDocument)
		review.POST("/review/stream", h.ReviewDocumentStream)
	}

	secured.GET("/dashboard", h.Dashboard)
	secured.GET("/dashboard/stats", h.DashboardStats)
	secured.GET("/dashboard/recent-case-files", h.RecentCaseFiles)
	secured.GET("/statistics", h.Statistics)
	secured.GET("/statistics/export", h.ExportStatistics)

	graph := secured.Group("/knowledge-graph")
	{
		graph.GET("/query", h.KnowledgeGraphQuery)
		graph.POST("/entity", h.KnowledgeGraphEntity)
		graph.GET("/relations", h.KnowledgeGraphRelations)
	}

	return h
}
