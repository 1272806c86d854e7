package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"projectstore/internal/model"
	"projectstore/internal/service"
)

// DegradedHeader is set on listings answered with sample data.
const DegradedHeader = "X-Degraded-Mode"

// ListProjects godoc
// @Summary List projects
// @Description Returns every project. When storage is missing or down the response holds sample data and carries X-Degraded-Mode.
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.ListResult
// @Router /projects [get]
func ListProjects(svc service.ProjectService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.List(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		if res.Degraded {
			c.Set(DegradedHeader, res.DegradedReason)
		}
		return c.JSON(res)
	}
}

// CreateProject godoc
// @Summary Create a project
// @Tags projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param project body model.Project true "Project"
// @Success 201 {object} model.Project
// @Failure 400 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /projects [post]
func CreateProject(svc service.ProjectService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in model.Project
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be a JSON project")
		}
		p, err := svc.Create(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// GetProject godoc
// @Summary Get a project
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Success 200 {object} model.Project
// @Failure 404 {object} errorPayload
// @Router /projects/{id} [get]
func GetProject(svc service.ProjectService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := svc.Get(c.UserContext(), strings.TrimSpace(c.Params("id")))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(p)
	}
}

// UpdateProject godoc
// @Summary Update a project
// @Description Empty fields are left unchanged.
// @Tags projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Param patch body model.ProjectPatch true "Fields to change"
// @Success 200 {object} model.Project
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /projects/{id} [put]
func UpdateProject(svc service.ProjectService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var patch model.ProjectPatch
		if err := c.BodyParser(&patch); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be a JSON patch")
		}
		p, err := svc.Update(c.UserContext(), strings.TrimSpace(c.Params("id")), patch)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(p)
	}
}

// DeleteProject godoc
// @Summary Delete a project
// @Description Tries the canonical key, then each legacy key, and reports the one removed.
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Success 200 {object} service.DeleteResult
// @Failure 404 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /projects/{id} [delete]
func DeleteProject(svc service.ProjectService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.Delete(c.UserContext(), strings.TrimSpace(c.Params("id")))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}
