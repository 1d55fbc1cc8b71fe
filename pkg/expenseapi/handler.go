package expenseapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BasePath is where the expense routes are mounted.
const BasePath = "/api/expenses"

// Config controls the handler.
type Config struct {
	// PositionalRows makes GET / return [id, amount, category, description, date]
	// rows instead of records, the way a thin SQL-backed server does.
	PositionalRows bool
	// AllowedOrigins enables CORS for the listed browser origins.
	AllowedOrigins []string
}

type handler struct {
	store  *Store
	cfg    Config
	logger zerolog.Logger
}

// NewHandler returns an http.Handler serving the expense API under BasePath.
func NewHandler(cfg Config, store *Store, logger zerolog.Logger) http.Handler {
	h := &handler{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "ExpenseAPI").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route(BasePath, func(r chi.Router) {
		r.Get("/", h.listExpenses)
		r.Post("/", h.addExpense)
		r.Get("/summary", h.summary)
		r.Delete("/{id}", h.deleteExpense)
	})

	if len(cfg.AllowedOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	}).Handler(r)
}

func (h *handler) listExpenses(w http.ResponseWriter, _ *http.Request) {
	list := h.store.List()
	if !h.cfg.PositionalRows {
		h.writeJSON(w, http.StatusOK, list)
		return
	}
	rows := make([][]any, 0, len(list))
	for _, e := range list {
		rows = append(rows, []any{e.ID, json.Number(e.Amount.String()), e.Category, e.Description, e.Date})
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// expenseBody is the POST / payload; every field is required and may not be
// null.
type expenseBody struct {
	Amount      *decimal.Decimal `json:"amount"`
	Category    *string          `json:"category"`
	Description *string          `json:"description"`
	Date        *string          `json:"date"`
}

func (b expenseBody) toNewExpense() (types.NewExpense, error) {
	var missing []string
	if b.Amount == nil {
		missing = append(missing, "amount")
	}
	if b.Category == nil {
		missing = append(missing, "category")
	}
	if b.Description == nil {
		missing = append(missing, "description")
	}
	if b.Date == nil {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return types.NewExpense{}, fmt.Errorf("field required: %s", strings.Join(missing, ", "))
	}
	n := types.NewExpense{
		Amount:      *b.Amount,
		Category:    *b.Category,
		Description: *b.Description,
		Date:        *b.Date,
	}
	return n, n.Validate()
}

func (h *handler) addExpense(w http.ResponseWriter, r *http.Request) {
	var body expenseBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.writeDetail(w, http.StatusUnprocessableEntity, "invalid expense body: "+err.Error())
		return
	}
	n, err := body.toNewExpense()
	if err != nil {
		h.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	e := h.store.Add(n)
	h.logger.Debug().Int64("id", e.ID).Str("category", e.Category).Msg("Expense added.")
	h.writeMessage(w, "Expense added successfully")
}

func (h *handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeDetail(w, http.StatusUnprocessableEntity, "expense id must be an integer")
		return
	}
	// Deleting a missing row is not an error, matching DELETE ... WHERE id = ?.
	existed := h.store.Delete(id)
	h.logger.Debug().Int64("id", id).Bool("existed", existed).Msg("Expense deleted.")
	h.writeMessage(w, "Expense deleted successfully")
}

func (h *handler) summary(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.Summary())
}

func (h *handler) writeMessage(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *handler) writeDetail(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write response.")
	}
}
