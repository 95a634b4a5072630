package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/middleware"
	"github.com/noah-isme/preenroll-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth           *AuthHandler
	Career         *CareerHandler
	Subject        *SubjectHandler
	CareerSubject  *CareerSubjectHandler
	Period         *PeriodHandler
	Student        *StudentHandler
	Enrollment     *EnrollmentHandler
	Dashboard      *DashboardHandler
	DBA            *DBAHandler
	SubmissionLogs *SubmissionLogHandler
}

// RouteGuards carries the credentials checks shared by the route groups.
type RouteGuards struct {
	Tokens     middleware.TokenValidator
	DBATokens  middleware.TokenChecker
	CookieName string
}

// RegisterRoutes mounts the API on the given group.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, guards RouteGuards) {
	admin := string(models.RoleAdmin)
	student := string(models.RoleStudent)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	auth := api.Group("/auth")
	auth.POST("/admins/login", h.Auth.AdminLogin)
	auth.POST("/students/login", h.Auth.StudentLogin)
	auth.POST("/students/register", h.Auth.Register)
	auth.POST("/refresh", h.Auth.Refresh)

	api.GET("/careers", h.Career.List)

	dba := api.Group("/dba", middleware.DBAToken(guards.DBATokens))
	dba.GET("/validate", h.DBA.Validate)
	dba.GET("/students/search", h.DBA.Search)
	dba.PATCH("/students/reset-password", h.DBA.ResetPassword)

	secured := api.Group("", middleware.JWT(guards.Tokens, guards.CookieName))

	securedAuth := secured.Group("/auth")
	securedAuth.POST("/logout", h.Auth.Logout)
	securedAuth.GET("/me", h.Auth.Me)
	securedAuth.PATCH("/students/change-password", middleware.RequireRoles(models.RoleStudent), h.Auth.ChangeStudentPassword)
	securedAuth.PATCH("/admins/change-password", adminOnly, h.Auth.ChangeAdminPassword)

	careers := secured.Group("/careers", adminOnly)
	careers.POST("", h.Career.Create)
	careers.PATCH("/:id", h.Career.Update)
	careers.DELETE("/:id", h.Career.Delete)

	subjects := secured.Group("/subjects", adminOnly)
	subjects.GET("", h.Subject.List)
	subjects.GET("/:id", h.Subject.Get)
	subjects.POST("", h.Subject.Create)
	subjects.PATCH("/:id", h.Subject.Update)
	subjects.DELETE("/:id", h.Subject.Delete)

	careerSubjects := secured.Group("/career-subjects")
	careerSubjects.GET("", h.CareerSubject.List)
	careerSubjects.POST("", adminOnly, h.CareerSubject.Create)
	careerSubjects.PATCH("/:id", adminOnly, h.CareerSubject.Update)
	careerSubjects.DELETE("/:id", adminOnly, h.CareerSubject.Delete)

	periods := secured.Group("/periods")
	periods.GET("", h.Period.List)
	periods.GET("/classified", h.Period.Classified)
	periods.POST("", adminOnly, h.Period.Create)
	periods.POST("/advance-semester", adminOnly, h.Period.AdvanceSemester)
	periods.PATCH("/:id", adminOnly, h.Period.Update)
	periods.DELETE("/:id", adminOnly, h.Period.Delete)

	students := secured.Group("/students")
	students.GET("", adminOnly, h.Student.List)
	students.GET("/:id", middleware.RBAC(admin, middleware.Self), h.Student.Get)
	students.PATCH("/:id", adminOnly, h.Student.Update)

	enrollments := secured.Group("/enrollments")
	enrollments.POST("/batch", middleware.RBAC(student), h.Enrollment.Batch)
	enrollments.GET("/my-status", middleware.RBAC(admin, middleware.Self), h.Enrollment.MyStatus)
	enrollments.GET("", adminOnly, h.Enrollment.Report)
	enrollments.GET("/enrollment-details", adminOnly, h.Enrollment.Details)

	admins := secured.Group("/admins", adminOnly)
	admins.GET("/dashboard-stats", h.Dashboard.Stats)
	admins.GET("/groups", h.Dashboard.Groups)

	secured.GET("/submission-logs", adminOnly, h.SubmissionLogs.List)
}
