package handlers

import (
	"campusmarket/internal/services/dispute"
	"campusmarket/internal/utils/pagination"
	"campusmarket/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type DisputeHandler struct {
	disputeService *dispute.Service
}

func NewDisputeHandler(disputeService *dispute.Service) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService}
}

type openDisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// FileDispute opens a dispute on the transaction in the path.
func (h *DisputeHandler) FileDispute(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	var input openDisputeRequest
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	d, err := h.disputeService.Open(c.UserContext(), c.Params("id"), claims.UserID, input.Reason)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Created(c, "Dispute filed successfully", d)
}

func (h *DisputeHandler) GetDisputes(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	disputes, err := h.disputeService.ListForTransaction(c.UserContext(), c.Params("id"), claims.UserID)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Disputes retrieved successfully", disputes)
}

// ListOpen is the operator queue of unresolved disputes.
func (h *DisputeHandler) ListOpen(c *fiber.Ctx) error {
	p := pagination.ParseFromRequest(c)
	disputes, total, err := h.disputeService.ListOpen(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return response.LedgerError(c, err)
	}
	p.Total = total
	return c.JSON(pagination.Response(p, disputes))
}

type resolveDisputeRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=release refund"`
	Note    string `json:"note" validate:"max=2000"`
}

// Resolve settles a dispute by releasing to the seller or refunding the buyer.
func (h *DisputeHandler) Resolve(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	var input resolveDisputeRequest
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	tx, err := h.disputeService.Resolve(c.UserContext(), c.Params("id"), dispute.Outcome(input.Outcome), claims.UserID, input.Note)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Dispute resolved", tx)
}
