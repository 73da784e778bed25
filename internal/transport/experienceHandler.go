package transport

import (
	"net/http"

	"github.com/ds124wfegd/bookit/internal/service"
	"github.com/gin-gonic/gin"
)

type ExperienceHandler struct {
	experienceService service.ExperienceService
}

func NewExperienceHandler(experienceService service.ExperienceService) *ExperienceHandler {
	return &ExperienceHandler{experienceService: experienceService}
}

func (h *ExperienceHandler) ListExperiences(c *gin.Context) {
	experiences, err := h.experienceService.ListExperiences(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, experiences)
}

func (h *ExperienceHandler) GetExperience(c *gin.Context) {
	details, err := h.experienceService.GetExperience(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}
