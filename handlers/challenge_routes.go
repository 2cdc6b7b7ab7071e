// handlers/challenge_routes.go
package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"bounty-challenge-system/middleware"
	"bounty-challenge-system/services"
)

func SetupChallengeRoutes(app *fiber.App, log *slog.Logger, challenges *services.ChallengeService, agencies *services.AgencyService) {
	// 🔓 Public routes, still behind Gateway auth
	app.Get("/challenges/:id", challenges.GetChallenge)
	app.Get("/challenges/:id/participants", challenges.ListParticipants)

	// 🔐 Secured routes, require user context
	userCtx := middleware.UserContextMiddleware(log)

	app.Post("/challenges", userCtx, challenges.CreateChallenge)
	app.Post("/challenges/:id/fund", userCtx, challenges.FundChallenge)
	app.Post("/challenges/:id/join", userCtx, challenges.JoinChallenge)
	app.Post("/challenges/:id/cancel", userCtx, challenges.CancelChallenge)

	admin := app.Group("/admin", userCtx, middleware.RequireRole("admin"))

	admin.Get("/challenges/:id/manifest", challenges.PreviewManifest)
	admin.Post("/challenges/:id/settle", challenges.SettleNow)
	admin.Post("/agencies", agencies.CreateAgency)
	admin.Put("/influencers/:user_id/agency", agencies.SetInfluencerAgency)
}
