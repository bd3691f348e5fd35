// internal/circulation/handler.go
package circulation

import (
	"fmt"
	"log/slog"
	"net/http"

	"libraripro/internal/apperr"
	"libraripro/internal/calendar"
	"libraripro/internal/web"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the circulation endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/transactions", h.HandleListTransactions)
	r.Post("/transactions", h.HandleIssueBook)
	r.Get("/transactions/{id}", h.HandleGetTransaction)
	r.Post("/transactions/{id}/return", h.HandleReturnBook)
	r.Post("/transactions/{id}/quick-return", h.HandleQuickReturn)
	r.Post("/transactions/{id}/renew", h.HandleRenewBook)
	r.Get("/transactions/{id}/history", h.HandleHistory)
	r.Get("/transactions/{id}/status", h.HandleDisplayStatus)
	r.Get("/holdings/{code}", h.HandleLookup)
	r.Get("/stats", h.HandleStats)
	r.Get("/verify", h.HandleVerify)
}

// issueBody and returnBody read dates as text so that a malformed date is
// reported against its field instead of failing the whole decode.
type issueBody struct {
	IssueRequest
	IssueDate string `json:"issueDate"`
	DueDate   string `json:"dueDate"`
}

type returnBody struct {
	ReturnRequest
	ReturnDate string `json:"returnDate"`
}

type dateField struct {
	name string
	raw  string
	dst  *calendar.Date
}

func parseDates(fields ...dateField) error {
	problems := make(map[string]string)
	for _, f := range fields {
		d, err := calendar.Parse(f.raw)
		if err != nil {
			problems[f.name] = "must be a date in YYYY-MM-DD format"
			continue
		}
		*f.dst = d
	}
	if len(problems) > 0 {
		return apperr.Validation(problems)
	}
	return nil
}

func (h *Handler) HandleIssueBook(w http.ResponseWriter, r *http.Request) {
	var body issueBody
	if err := web.ReadJSON(w, r, &body); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}
	req := body.IssueRequest
	if err := parseDates(
		dateField{"issueDate", body.IssueDate, &req.IssueDate},
		dateField{"dueDate", body.DueDate, &req.DueDate},
	); err != nil {
		web.Error(w, r, h.logger, err)
		return
	}

	t, err := h.service.IssueBook(r.Context(), req)
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusCreated, web.Envelope{"transaction": t})
}

func (h *Handler) HandleReturnBook(w http.ResponseWriter, r *http.Request) {
	var body returnBody
	if err := web.ReadJSON(w, r, &body); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}
	req := body.ReturnRequest
	if err := parseDates(dateField{"returnDate", body.ReturnDate, &req.ReturnDate}); err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	req.TransactionID = chi.URLParam(r, "id")

	t, err := h.service.ReturnBook(r.Context(), req)
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"transaction": t})
}

func (h *Handler) HandleQuickReturn(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.QuickReturn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"transaction": t})
}

func (h *Handler) HandleRenewBook(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.RenewBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"transaction": t})
}

func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"transaction": t})
}

func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	issuedOn, err := queryDate(r, "issuedOn")
	if err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}
	asOf, err := queryDate(r, "asOf")
	if err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), Filter{
		Query:    qs.Get("q"),
		Status:   qs.Get("status"),
		MemberID: qs.Get("memberId"),
		BookID:   qs.Get("bookId"),
		IssuedOn: issuedOn,
		AsOf:     asOf,
	})
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"transactions": transactions})
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"events": events})
}

func (h *Handler) HandleDisplayStatus(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "asOf")
	if err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	status, err := h.service.DisplayStatus(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"status": status})
}

func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.service.LookupByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"holdings": holdings})
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "asOf")
	if err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	stats, err := h.service.Stats(r.Context(), asOf)
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"stats": stats})
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	violations, err := h.service.Verify(r.Context())
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	if violations == nil {
		violations = []Violation{}
	}
	h.write(w, r, http.StatusOK, web.Envelope{"consistent": len(violations) == 0, "violations": violations})
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data web.Envelope) {
	if err := web.WriteJSON(w, status, data); err != nil {
		web.Error(w, r, h.logger, err)
	}
}

func queryDate(r *http.Request, key string) (calendar.Date, error) {
	d, err := calendar.Parse(r.URL.Query().Get(key))
	if err != nil {
		return calendar.Date{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
