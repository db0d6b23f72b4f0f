package handlers

import (
	"campusmarket/internal/models"
	"campusmarket/internal/repositories"
	"campusmarket/internal/services/escrow"
	"campusmarket/internal/services/transaction"
	"campusmarket/internal/utils/pagination"
	"campusmarket/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type TransactionHandler struct {
	transactions *transaction.Service
	escrow       *escrow.Service
}

func NewTransactionHandler(transactions *transaction.Service, escrowService *escrow.Service) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, escrow: escrowService}
}

type initiateRequest struct {
	ListingID     string          `json:"listing_id" validate:"required,max=64"`
	SellerID      string          `json:"seller_id" validate:"required,max=64"`
	Amount        decimal.Decimal `json:"amount" validate:"required,money"`
	PaymentMethod string          `json:"payment_method" validate:"required,payment_method"`
}

// Create starts a purchase on behalf of the authenticated buyer.
func (h *TransactionHandler) Create(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	var input initiateRequest
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	tx, err := h.transactions.Initiate(c.UserContext(), transaction.InitiateRequest{
		BuyerID:       claims.UserID,
		SellerID:      input.SellerID,
		ListingID:     input.ListingID,
		Amount:        input.Amount,
		PaymentMethod: models.PaymentMethod(input.PaymentMethod),
	})
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Created(c, "Transaction created", tx)
}

// List returns the caller's purchases and/or sales.
func (h *TransactionHandler) List(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	p := pagination.ParseFromRequest(c)

	txs, total, err := h.transactions.History(c.UserContext(), transaction.HistoryQuery{
		UserID: claims.UserID,
		Role:   repositories.HistoryRole(c.Query("type", string(repositories.HistoryAll))),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return response.LedgerError(c, err)
	}
	p.Total = total
	return c.JSON(pagination.Response(p, txs))
}

func (h *TransactionHandler) Get(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	tx, err := h.transactions.GetForActor(c.UserContext(), c.Params("id"), claims.UserID)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Transaction retrieved", tx)
}

func (h *TransactionHandler) Receipt(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	receipt, err := h.transactions.Receipt(c.UserContext(), c.Params("id"), claims.UserID)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Receipt retrieved", receipt)
}

func (h *TransactionHandler) Cancel(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	tx, err := h.transactions.Cancel(c.UserContext(), c.Params("id"), claims.UserID)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Transaction cancelled", tx)
}

// ConfirmDelivery is the buyer's early release of escrowed funds.
func (h *TransactionHandler) ConfirmDelivery(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	res, err := h.escrow.ConfirmDelivery(c.UserContext(), c.Params("id"), claims.UserID)
	if err != nil {
		return response.LedgerError(c, err)
	}
	return response.Success(c, "Delivery confirmed, funds released", res)
}
