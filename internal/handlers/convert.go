package handlers

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/TonyXing/youtube-to-epub/internal/conversion"
	"github.com/TonyXing/youtube-to-epub/internal/types"
	"github.com/TonyXing/youtube-to-epub/internal/youtube"
)

// ConvertHandler handles job submission, cancellation and artifact download.
type ConvertHandler struct {
	manager *conversion.Manager
}

// NewConvertHandler creates a new convert handler.
func NewConvertHandler(manager *conversion.Manager) *ConvertHandler {
	return &ConvertHandler{manager: manager}
}

type convertRequest struct {
	URL string `json:"url"`
}

// Submit validates the URL and starts a conversion job.
func (h *ConvertHandler) Submit(c *fiber.Ctx) error {
	var req convertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	jobID, err := h.manager.Submit(req.URL)
	if err != nil {
		ce := types.AsConversionError(err, types.KindInvalidReference)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": ce.UserMessage(),
			"kind":  ce.Kind,
		})
	}

	log.Printf("Job %s submitted for %s", jobID, req.URL)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id": jobID,
		"status": types.StatusQueued,
	})
}

// Status returns the current snapshot of a job.
func (h *ConvertHandler) Status(c *fiber.Ctx) error {
	job := h.manager.Job(c.Params("id"))
	if job == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Job not found",
		})
	}

	resp := fiber.Map{
		"job_id":     job.ID,
		"video_id":   job.Ref.VideoID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
	}
	if job.Err != nil {
		resp["error"] = job.Err.UserMessage()
		resp["kind"] = job.Err.Kind
	}
	if job.Status == types.StatusCompleted {
		resp["file_name"] = job.ArtifactName
		resp["chapter_count"] = job.ChapterCount
	}
	return c.JSON(resp)
}

// Cancel requests the job stop at its next stage boundary.
func (h *ConvertHandler) Cancel(c *fiber.Ctx) error {
	if err := h.manager.Cancel(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Job not found",
		})
	}
	return c.JSON(fiber.Map{"status": "cancelling"})
}

// Download serves the finished EPUB. A running job yields 409, a failed one
// 410, an unknown one 404.
func (h *ConvertHandler) Download(c *fiber.Ctx) error {
	path, fileName, err := h.manager.Artifact(c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, conversion.ErrJobNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Job not found",
			})
		case errors.Is(err, conversion.ErrArtifactNotReady):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Conversion still in progress",
			})
		default:
			return c.Status(fiber.StatusGone).JSON(fiber.Map{
				"error": "No book available for this job",
			})
		}
	}

	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, fileName))
	c.Set(fiber.HeaderContentType, "application/epub+zip")
	return c.SendFile(path)
}

// PreviewHandler serves the fetch-only video preview.
type PreviewHandler struct {
	client *youtube.Client
}

// NewPreviewHandler creates a new preview handler.
func NewPreviewHandler(client *youtube.Client) *PreviewHandler {
	return &PreviewHandler{client: client}
}

// Handle fetches metadata for a URL without creating a job.
func (h *PreviewHandler) Handle(c *fiber.Ctx) error {
	ref, err := youtube.ParseReference(c.Query("url"))
	if err != nil {
		ce := types.AsConversionError(err, types.KindInvalidReference)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": ce.UserMessage(),
			"kind":  ce.Kind,
		})
	}

	preview, err := h.client.Preview(c.Context(), ref)
	if err != nil {
		ce := types.AsConversionError(err, types.KindFetchError)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": ce.UserMessage(),
			"kind":  ce.Kind,
		})
	}
	return c.JSON(preview)
}
