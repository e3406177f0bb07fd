// Package api exposes the orchestration facade over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/procflow/procflow/pkg/api/handler"
	"github.com/procflow/procflow/pkg/api/middleware"
	"github.com/procflow/procflow/pkg/banking"
	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/telemetry"
)

// SetupRouter builds the gin engine serving facade.
func SetupRouter(facade handler.Facade, tel *telemetry.Telemetry, version string) *gin.Engine {
	if tel == nil {
		tel = telemetry.NewNopTelemetry()
	}
	logger := tel.Logger.NewComponentLogger("api")

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.NoRoute(func(c *gin.Context) {
		c.Header("Content-Type", faults.ContentType)
		c.JSON(http.StatusNotFound, faults.Problem{
			Type:   faults.ProblemTypeBase + "not_found",
			Title:  http.StatusText(http.StatusNotFound),
			Status: http.StatusNotFound,
			Detail: "no route for " + c.Request.Method + " " + c.Request.URL.Path,
		})
	})

	health := handler.NewHealthHandler(facade, version)
	process := handler.NewProcessHandler(facade)
	bank := handler.NewBankingHandler(facade)

	router.GET("/healthz", health.Health)
	router.GET("/metrics", gin.WrapH(tel.Metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		authn := v1.Group("/auth")
		{
			authn.POST("/login", bank.Login)
			authn.POST("/logout", bank.Logout)
		}

		v1.GET("/definitions", process.ListDefinitions)

		deployments := v1.Group("/deployments")
		{
			deployments.GET("", process.ListDeployments)
			deployments.POST("", process.Deploy)
			deployments.DELETE("/:id", process.DeleteDeployment)
			deployments.GET("/:id/resources", process.ListResources)
			deployments.GET("/:id/resources/:name", process.GetResource)
		}

		instances := v1.Group("/process-instances")
		{
			instances.GET("", process.ListInstances)
			instances.POST("", process.Start)
			instances.GET("/:id/variables", process.Variables)
			instances.GET("/:id/status", process.Status)
			instances.GET("/:id/completion", process.Completion)
			instances.POST("/:id/terminate", process.Terminate)
		}

		tasks := v1.Group("/tasks")
		{
			tasks.GET("", process.ListTasks)
			tasks.POST("/:id/complete", process.CompleteTask)
			tasks.GET("/:id/variables", process.TaskVariables)
		}

		history := v1.Group("/history")
		{
			history.GET("", process.ListHistory)
			history.GET("/:id", process.History)
		}

		clients := v1.Group("/clients")
		{
			clients.GET("", bank.FindClient)
			clients.POST("", bank.CreateClient)
			clients.GET("/:id", bank.GetClient)
			clients.PUT("/:id", bank.UpdateClient)
			clients.POST("/:id/activate", bank.ActivateClient)
		}

		loans := v1.Group("/loans")
		{
			loans.GET("", bank.FindLoan)
			loans.POST("", bank.CreateLoan)
			loans.GET("/:id", bank.GetLoan)
			loans.PUT("/:id", bank.UpdateLoan)
			loans.POST("/:id/approve", bank.LoanCommand(banking.OpApproveLoan))
			loans.POST("/:id/disburse", bank.LoanCommand(banking.OpDisburseLoan))
			loans.POST("/:id/reject", bank.LoanCommand(banking.OpRejectLoan))
		}
	}

	return router
}
