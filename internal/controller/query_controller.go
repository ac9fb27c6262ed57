package controller

import (
	"errors"

	"chatserver-be/internal/dto"
	"chatserver-be/internal/pkg/serverutils"
	"chatserver-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IQueryController interface {
	RegisterRoutes(r fiber.Router)
	Submit(ctx *fiber.Ctx) error
}

type queryController struct {
	service service.IQueryService
	auth    serverutils.Authenticator
}

func NewQueryController(service service.IQueryService, auth serverutils.Authenticator) IQueryController {
	return &queryController{service: service, auth: auth}
}

func (c *queryController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/threads")
	h.Use(serverutils.JwtMiddleware(c.auth))
	h.Post(":id/llm-query", c.Submit)
}

// Submit accepts a question for the thread and answers 202; the result
// arrives on the thread's websocket scope.
func (c *queryController) Submit(ctx *fiber.Ctx) error {
	userID, ok := serverutils.UserID(ctx)
	if !ok {
		return fiber.ErrUnauthorized
	}
	threadID, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid thread ID")
	}

	var req dto.LLMQueryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	requestID, err := c.service.Submit(ctx.UserContext(), userID, threadID, req.Query)
	if err != nil {
		return queryError(err)
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Query accepted", dto.LLMQueryAccepted{
		RequestID: requestID,
		ThreadID:  threadID,
	}))
}

func queryError(err error) error {
	switch {
	case errors.Is(err, service.ErrThreadNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrLLMDisabled),
		errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, service.ErrQueryTooLong):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotChannelMember):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	default:
		return err
	}
}
