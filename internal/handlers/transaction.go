package handlers

import (
	"errors"
	"net/http"

	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
	"github.com/markjakearzadon/mpesa-gobackend/internal/services"
)

const exportFilename = "successful_transactions.csv"

type TransactionHandler struct {
	service *services.TransactionService
}

func NewTransactionHandler(service *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// List handles GET /api/transactions
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	views := make([]models.TransactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, tx.View())
	}
	respondJSON(w, http.StatusOK, views)
}

// Download handles GET /api/transactions/download
func (h *TransactionHandler) Download(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ExportSuccessful(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoSuccessfulTransactions) {
			respondError(w, http.StatusNotFound, "No successful transactions found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to download transactions")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename)
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}
