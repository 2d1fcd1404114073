package v1

import (
	"github.com/database64128/domaincheck-go/checker"
	"github.com/gofiber/fiber/v2"
)

// StandardError is the standard error response.
type StandardError struct {
	Message string `json:"error"`
}

// Routes sets up routes for the /v1 endpoint.
func Routes(router fiber.Router, ck *checker.Checker) *CheckerHandler {
	v1 := router.Group("/v1")
	ch := NewCheckerHandler(ck)
	ch.Routes(v1)
	return ch
}
