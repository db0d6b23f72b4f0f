package handlers

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"campusmarket/internal/services/audit"
	"campusmarket/internal/services/escrow"
	"campusmarket/internal/services/payment"
	"campusmarket/internal/services/transaction"
	"campusmarket/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler serves the operator endpoints: approval, escrow control,
// revenue and the audit trail.
type AdminHandler struct {
	transactions *transaction.Service
	escrow       *escrow.Service
	verifier     payment.Verifier
	audit        *audit.Queries
	logger       *slog.Logger
}

func NewAdminHandler(transactions *transaction.Service, escrowService *escrow.Service, verifier payment.Verifier, queries *audit.Queries, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		transactions: transactions,
		escrow:       escrowService,
		verifier:     verifier,
		audit:        queries,
		logger:       logger,
	}
}

func (h *AdminHandler) Approve(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	tx, err := h.transactions.Approve(c.UserContext(), c.Params("id"), claims.UserID)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Transaction approved", tx)
}

type holdRequest struct {
	PaymentReference string `json:"payment_reference" validate:"max=128"`
	PaymentConfirmed bool   `json:"payment_confirmed"`
}

// Hold verifies the payment with its rail and moves the funds into escrow.
func (h *AdminHandler) Hold(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	var input holdRequest
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	ctx := c.UserContext()
	tx, err := h.transactions.Get(ctx, c.Params("id"))
	if err != nil {
		return response.LedgerError(c, err)
	}

	conf, err := h.verifier.Verify(ctx, tx, input.PaymentReference, input.PaymentConfirmed)
	if errors.Is(err, payment.ErrUnsupportedMethod) {
		return response.BadRequest(c, "Payment method cannot be verified")
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "payment verification failed", "transaction_id", tx.ID, "error", err)
		return response.Error(c, fiber.StatusBadGateway, "Payment verification failed")
	}
	reference := conf.Reference
	if reference == "" {
		reference = input.PaymentReference
	}

	acct, err := h.escrow.Hold(ctx, escrow.HoldRequest{
		TransactionID:    tx.ID,
		PaymentConfirmed: conf.Confirmed,
		PaymentReference: reference,
		ActorID:          claims.UserID,
	})
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Created(c, "Funds held in escrow", acct)
}

type releaseRequest struct {
	ConfirmationProof string `json:"confirmation_proof" validate:"required,max=2000"`
}

func (h *AdminHandler) Release(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	var input releaseRequest
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	res, err := h.escrow.Release(c.UserContext(), c.Params("id"), claims.UserID, input.ConfirmationProof)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Escrow released", res)
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func (h *AdminHandler) Refund(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	var input refundRequest
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	tx, err := h.escrow.Refund(c.UserContext(), c.Params("id"), input.Reason, claims.UserID)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Refund processed", tx)
}

// EscrowForTransaction shows the escrow account behind a transaction.
func (h *AdminHandler) EscrowForTransaction(c *fiber.Ctx) error {
	acct, err := h.escrow.FindByTransaction(c.UserContext(), c.Params("id"))
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Escrow retrieved", acct)
}

// Revenue sums commission over [from, to). Both bounds are RFC 3339 or
// YYYY-MM-DD; the default window is the last 30 days.
func (h *AdminHandler) Revenue(c *fiber.Ctx) error {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = parseTime(v); err != nil {
			return response.BadRequest(c, "Invalid from date")
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = parseTime(v); err != nil {
			return response.BadRequest(c, "Invalid to date")
		}
	}

	rev, err := h.transactions.AdminRevenue(c.UserContext(), from, to)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Revenue retrieved", rev)
}

func (h *AdminHandler) RecentAudit(c *fiber.Ctx) error {
	entries, err := h.audit.RecentAdminActions(c.UserContext(), queryLimit(c))
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Audit entries retrieved", entries)
}

func (h *AdminHandler) UserAudit(c *fiber.Ctx) error {
	entries, err := h.audit.UserHistory(c.UserContext(), c.Params("id"), queryLimit(c))
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Audit entries retrieved", entries)
}

func (h *AdminHandler) EntityAudit(c *fiber.Ctx) error {
	entries, err := h.audit.EntityHistory(c.UserContext(), c.Params("entity"), c.Params("id"))
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Audit entries retrieved", entries)
}

func queryLimit(c *fiber.Ctx) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return limit
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
