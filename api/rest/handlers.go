package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// latestRun returns the most recent run.
func (s *Server) latestRun(c *fiber.Ctx) error {
	r, ok := s.board.Latest()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "no run started yet",
		})
	}
	return c.JSON(r)
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	runs := s.board.List()
	return c.JSON(RunListResponse{Runs: runs, Total: len(runs)})
}

func (s *Server) getRun(c *fiber.Ctx) error {
	id := c.Params("id")
	r, ok := s.board.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "run " + id + " not found",
		})
	}
	return c.JSON(r)
}
