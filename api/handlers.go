/*
handlers.go - HTTP API handlers for the billing core

PURPOSE:
  Exposes bill generation, payments and the cash ledger via REST. Handles
  HTTP request/response, JSON serialization and validation, and delegates
  to the billing services.

ENDPOINTS:
  Students:
    GET    /api/students                      List (class, status, q)
    POST   /api/students                      Create
    PUT    /api/students/{id}/class           Change class
    POST   /api/students/{id}/transfer-out    Mutasi keluar
    GET    /api/students/{id}/invoices        Invoices of a student
    GET    /api/students/{id}/arrears         Tunggakan

  Bill definitions:
    GET    /api/bill-definitions              List
    POST   /api/bill-definitions              Create from factory JSON (409 if the id exists)
    GET    /api/bill-definitions/{id}         Get, with next due date
    POST   /api/bill-definitions/{id}/preview Dry-run generation
    POST   /api/bill-definitions/{id}/generate Generate invoices

  Payments:
    POST   /api/payments/full                 Pay selected invoices in full
    POST   /api/payments/partial              Spend a tendered amount
    GET    /api/payments/{id}/receipt         Kwitansi PDF

  Ledger:
    GET    /api/ledger/accounts               List buku kas
    POST   /api/ledger/accounts               Create buku kas
    GET    /api/ledger/accounts/{id}/entries  Statement with balance
    POST   /api/ledger/entries                Manual income/expense
    POST   /api/ledger/transfers              Two-leg transfer
    DELETE /api/ledger/entries/{id}           Delete (locked -> 409)

ERROR HANDLING:
  Errors are returned in the envelope with an HTTP status:
  - 400: validation errors, invalid strategy or tender, nothing to allocate
  - 404: missing student, class, definition, invoice, account, entry
  - 409: locked entry, duplicate invoice or submission, same-account transfer
  - 500: storage failures (details are logged, not returned)

SECURITY NOTE:
  No authentication middleware. The dashboard in front of this API is
  expected to handle login and pass received_by / created_by.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/pesantren-billing/billing"
	"github.com/warp/pesantren-billing/factory"
	"github.com/warp/pesantren-billing/logging"
	"github.com/warp/pesantren-billing/metrics"
	"github.com/warp/pesantren-billing/receipt"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures a Handler. Zero values fall back to sensible
// defaults: Juli start month, 24 month due lookahead, UUID ids, wall clock.
type Options struct {
	StartMonth   billing.Month
	DueLookahead int
	Institution  string
	Clock        billing.Clock
	IDs          billing.IDGenerator
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     billing.TxStore
	Factory   factory.DefinitionFactory
	Generator *billing.Generator
	Payments  *billing.PaymentService
	Ledger    *billing.LedgerService
	Students  *billing.StudentService

	metrics     *metrics.Metrics
	log         *zap.Logger
	clock       billing.Clock
	ids         billing.IDGenerator
	startMonth  billing.Month
	lookahead   int
	institution string
	validate    *validator.Validate
}

// NewHandler wires the billing services over store.
func NewHandler(store billing.TxStore, opts Options) *Handler {
	if !opts.StartMonth.Valid() {
		opts.StartMonth = billing.Juli
	}
	if opts.DueLookahead < 1 {
		opts.DueLookahead = billing.DefaultDueLookahead
	}
	if opts.Institution == "" {
		opts.Institution = "Pondok Pesantren"
	}
	if opts.IDs == nil {
		opts.IDs = billing.UUIDGenerator{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		Store:       store,
		Factory:     factory.NewDefinitionFactory(opts.StartMonth),
		Generator:   billing.NewGenerator(store, opts.IDs, opts.Clock, opts.Logger.Named("generator")),
		Payments:    billing.NewPaymentService(store, opts.IDs, opts.Clock, opts.Logger.Named("payments")),
		Ledger:      billing.NewLedgerService(store, opts.IDs, opts.Clock, opts.Logger.Named("ledger")),
		Students:    billing.NewStudentService(store, opts.Clock, opts.Logger.Named("students")),
		metrics:     opts.Metrics,
		log:         opts.Logger,
		clock:       opts.Clock,
		ids:         opts.IDs,
		startMonth:  opts.StartMonth,
		lookahead:   opts.DueLookahead,
		institution: opts.Institution,
		validate:    newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names in errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns students matching the class, status and q filters.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.StudentFilter{
		ClassName: billing.ClassName(q.Get("class")),
		Status:    billing.StudentStatus(q.Get("status")),
		Query:     q.Get("q"),
	}
	students, err := h.Store.ListStudents(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, students)
}

// CreateStudent registers a student in an existing class.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !h.decode(w, r, &req) {
		return
	}
	st := req.toStudent()
	if st.ID == "" {
		st.ID = billing.StudentID(h.ids.NewID())
	}
	created, err := h.Students.Create(r.Context(), st)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: created})
}

// ChangeClass moves a student to another class.
// PUT /api/students/{id}/class
func (h *Handler) ChangeClass(w http.ResponseWriter, r *http.Request) {
	var req ChangeClassRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := billing.StudentID(chi.URLParam(r, "id"))
	st, err := h.Students.ChangeClass(r.Context(), id, billing.ClassName(req.ClassName))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: st})
}

// TransferOut records a mutasi keluar and drops future unpaid invoices.
// POST /api/students/{id}/transfer-out
func (h *Handler) TransferOut(w http.ResponseWriter, r *http.Request) {
	var req TransferOutRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := billing.StudentID(chi.URLParam(r, "id"))
	deleted, err := h.Students.TransferOut(ctx, id, req.EffectiveDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.Store.GetStudent(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: TransferOutResponse{Student: st, DeletedInvoices: deleted}})
}

// StudentInvoices lists every invoice of a student, optionally by status.
// GET /api/students/{id}/invoices?status=unpaid
func (h *Handler) StudentInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := billing.StudentID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetStudent(ctx, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	invoices, err := h.Store.ListInvoices(ctx, billing.InvoiceFilter{
		StudentID: id,
		Status:    billing.InvoiceStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Data: nonNil(invoices),
		Meta: map[string]any{"total": len(invoices), "residual": billing.TotalResidual(invoices)},
	})
}

// StudentArrears returns the tunggakan of a student.
// GET /api/students/{id}/arrears?as_of=2025-10-01
func (h *Handler) StudentArrears(w http.ResponseWriter, r *http.Request) {
	var asOf billing.Date
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := billing.ParseDate(s)
		if err != nil {
			h.writeError(w, r, &billing.ValidationError{Field: "as_of", Reason: err.Error()})
			return
		}
		asOf = d
	}
	arrears, err := h.Students.Arrears(r.Context(), billing.StudentID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: arrears})
}

// ListClasses returns all classes ordered by level.
func (h *Handler) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.Store.ListClasses(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, classes)
}

// CreateClass adds a class.
func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req CreateClassRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := billing.Class{Name: billing.ClassName(req.Name), Level: req.Level}
	if err := h.Store.SaveClass(r.Context(), c); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: c})
}

// =============================================================================
// BILL DEFINITION HANDLERS
// =============================================================================

// ListDefinitions returns every definition in its JSON form.
func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Store.ListDefinitions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]factory.DefinitionJSON, len(defs))
	for i, def := range defs {
		out[i] = factory.ToJSON(def)
	}
	writeList(w, out)
}

// CreateDefinition parses a definition from the factory JSON body.
func (h *Handler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope("invalid_body", "could not read request body", nil))
		return
	}
	def, err := h.Factory.Parse(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = h.clock.Now()
	}
	err = h.Store.WithTx(ctx, func(tx billing.Store) error {
		_, err := tx.GetDefinition(ctx, def.ID)
		if err == nil {
			return fmt.Errorf("%w: %s", billing.ErrDuplicateDefinition, def.ID)
		}
		if !errors.Is(err, billing.ErrDefinitionNotFound) {
			return err
		}
		if _, err := tx.GetAccount(ctx, def.LedgerAccountID); err != nil {
			return err
		}
		return tx.SaveDefinition(ctx, def)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: h.definitionResponse(def)})
}

// GetDefinition returns a definition and its next due date.
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := h.Store.GetDefinition(r.Context(), billing.DefinitionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: h.definitionResponse(def)})
}

func (h *Handler) definitionResponse(def billing.BillDefinition) DefinitionResponse {
	resp := DefinitionResponse{Definition: factory.ToJSON(def)}
	if next, err := billing.NextDueDate(def, h.clock.Today(), h.lookahead); err == nil {
		resp.NextDueDate = &next
	}
	return resp
}

// PreviewGeneration shows what Generate would create without writing.
// POST /api/bill-definitions/{id}/preview
func (h *Handler) PreviewGeneration(w http.ResponseWriter, r *http.Request) {
	in, ok := h.generationInput(w, r)
	if !ok {
		return
	}
	preview, err := h.Generator.Preview(r.Context(), in.Definition, in.AcademicYear, in.Students)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: preview, Warnings: preview.Warnings})
}

// Generate creates the invoices of a definition for an academic year.
// Safe to repeat: existing billing slots are skipped.
// POST /api/bill-definitions/{id}/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.generationInput(w, r)
	if !ok {
		return
	}
	summary, err := h.Generator.Generate(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.InvoicesGenerated(string(in.Definition.ID), summary.TotalInvoices)
	}
	status := http.StatusCreated
	if summary.TotalInvoices == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, Envelope{Data: summary, Warnings: summary.Warnings})
}

// generationInput resolves the definition, academic year and students of a
// preview or generate request, writing the error response on failure.
func (h *Handler) generationInput(w http.ResponseWriter, r *http.Request) (billing.GenerateInput, bool) {
	var req GenerateRequest
	if !h.decode(w, r, &req) {
		return billing.GenerateInput{}, false
	}
	ctx := r.Context()
	def, err := h.Store.GetDefinition(ctx, billing.DefinitionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return billing.GenerateInput{}, false
	}
	ay, err := billing.ParseAcademicYear(req.AcademicYear, h.startMonth)
	if err != nil {
		h.writeError(w, r, err)
		return billing.GenerateInput{}, false
	}
	students, err := h.selectStudents(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return billing.GenerateInput{}, false
	}
	return billing.GenerateInput{
		Definition:   def,
		AcademicYear: ay,
		Students:     students,
		Overrides:    req.overrides(),
		CreatedBy:    req.CreatedBy,
	}, true
}

func (h *Handler) selectStudents(ctx context.Context, req GenerateRequest) ([]billing.Student, error) {
	if len(req.StudentIDs) == 0 {
		return h.Store.ListStudents(ctx, billing.StudentFilter{
			ClassName: billing.ClassName(req.ClassName),
			Status:    billing.StudentActive,
		})
	}
	students := make([]billing.Student, 0, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		st, err := h.Store.GetStudent(ctx, billing.StudentID(id))
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, nil
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// PayFull settles the selected invoices at their residual amounts.
func (h *Handler) PayFull(w http.ResponseWriter, r *http.Request) {
	h.pay(w, r, "full", h.Payments.PayFull)
}

// PayPartial spends the tendered amount across the invoices in order.
func (h *Handler) PayPartial(w http.ResponseWriter, r *http.Request) {
	h.pay(w, r, "partial", h.Payments.PayPartial)
}

type payFunc func(context.Context, billing.PaymentRequest) (billing.PaymentResult, error)

func (h *Handler) pay(w http.ResponseWriter, r *http.Request, mode string, fn payFunc) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := fn(r.Context(), req.toCore())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		applied, _ := result.Payment.Applied.Value.Float64()
		h.metrics.PaymentRecorded(mode, string(result.Payment.Method), applied)
		for _, e := range result.Entries {
			h.metrics.LedgerEntryWritten(string(e.Kind))
		}
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: result, Warnings: result.Warnings})
}

// Receipt renders the kwitansi of a payment as PDF.
// GET /api/payments/{id}/receipt
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.Payments.GetPayment(ctx, billing.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.Store.GetStudent(ctx, p.StudentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defs := make(map[billing.DefinitionID]billing.BillDefinition)
	for _, a := range p.Allocations {
		if _, ok := defs[a.DefinitionID]; ok {
			continue
		}
		// A deleted definition still prints, under its id.
		if def, err := h.Store.GetDefinition(ctx, a.DefinitionID); err == nil {
			defs[def.ID] = def
		}
	}
	pdf, err := receipt.Build(h.institution, p, st, defs).PDF()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="kwitansi-%s.pdf"`, p.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListAccounts returns every buku kas.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, accounts)
}

// CreateAccount adds a buku kas.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	a := billing.LedgerAccount{
		ID:          billing.AccountID(req.ID),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   h.clock.Now(),
	}
	if err := h.Store.SaveAccount(r.Context(), a); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: a})
}

// AccountEntries returns the statement of a buku kas.
// GET /api/ledger/accounts/{id}/entries
func (h *Handler) AccountEntries(w http.ResponseWriter, r *http.Request) {
	stmt, err := h.Ledger.Statement(r.Context(), billing.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: stmt, Meta: map[string]any{"total": len(stmt.Entries)}})
}

// CreateEntry posts a manual income or expense.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req ManualEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.Ledger.PostManual(r.Context(), req.toCore())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.LedgerEntryWritten(string(entry.Kind))
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: entry})
}

// CreateTransfer posts both legs of a transfer.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	entries, err := h.Ledger.PostTransfer(r.Context(), req.toCore())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		for _, e := range entries {
			h.metrics.LedgerEntryWritten(string(e.Kind))
		}
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: entries})
}

// DeleteEntry removes a manual entry. Entries created by a payment are
// locked.
// DELETE /api/ledger/entries/{id}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := billing.EntryID(chi.URLParam(r, "id"))
	if err := h.Ledger.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: map[string]string{"deleted": string(id)}})
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness, and database reachability when the store can
// be pinged.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			logging.FromContext(r.Context()).Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorEnvelope("unavailable", "database unreachable", nil))
			return
		}
	}
	writeJSON(w, http.StatusOK, Envelope{Data: map[string]string{"status": "ok"}})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		} else if errors.Is(err, billing.ErrInvalidMoney) || errors.Is(err, billing.ErrInvalidDate) {
			msg = err.Error()
		}
		writeJSON(w, http.StatusBadRequest, errorEnvelope("invalid_body", msg, nil))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			h.writeError(w, r, err)
			return false
		}
		details := make([]FieldDetail, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldDetail{Field: fe.Field(), Message: validationMessage(fe)})
		}
		writeJSON(w, http.StatusBadRequest, errorEnvelope("validation_error", "request validation failed", details))
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Must contain at least " + fe.Param() + " item(s)"
	case "max":
		return "Must be at most " + fe.Param() + " characters"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "gte":
		return "Must be greater than or equal to " + fe.Param()
	case "lte":
		return "Must be less than or equal to " + fe.Param()
	default:
		return "Invalid value"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeList always encodes a JSON array, never null.
func writeList[T any](w http.ResponseWriter, items []T) {
	writeJSON(w, http.StatusOK, Envelope{Data: nonNil(items), Meta: map[string]any{"total": len(items)}})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func errorEnvelope(code, message string, details []FieldDetail) Envelope {
	return Envelope{Error: &ErrorBody{Code: code, Message: message, Details: details}}
}

// errorCodes is checked in order; the first match names the error.
var errorCodes = []struct {
	err  error
	code string
}{
	{billing.ErrEntryLocked, "entry_locked"},
	{billing.ErrDuplicateInvoice, "duplicate_invoice"},
	{billing.ErrDuplicateSubmission, "duplicate_submission"},
	{billing.ErrDuplicateDefinition, "duplicate_definition"},
	{billing.ErrSameAccountTransfer, "same_account_transfer"},
	{billing.ErrInvalidAmountStrategy, "invalid_amount_strategy"},
	{billing.ErrInvalidTenderAmount, "invalid_tender_amount"},
	{billing.ErrNothingToAllocate, "nothing_to_allocate"},
	{billing.ErrUnknownCategory, "unknown_category"},
	{billing.ErrNoDueDate, "no_due_date"},
	{billing.ErrInvalidAmount, "invalid_amount"},
	{billing.ErrInvalidMoney, "invalid_amount"},
	{billing.ErrInvalidMonth, "invalid_month"},
	{billing.ErrInvalidDate, "invalid_date"},
	{billing.ErrValidation, "validation_error"},
}

// writeError maps a billing error onto a status and envelope. Storage
// failures are logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case billing.IsNotFound(err):
		status = http.StatusNotFound
	case billing.IsConflict(err):
		status = http.StatusConflict
	case billing.IsClientError(err):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, status, errorEnvelope("internal_error", "internal server error", nil))
		return
	}

	code := "not_found"
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}
	if h.metrics != nil && status != http.StatusNotFound {
		h.metrics.Rejected(code)
	}

	var details []FieldDetail
	var verr *billing.ValidationError
	if errors.As(err, &verr) {
		details = []FieldDetail{{Field: verr.Field, Message: verr.Reason}}
	}
	writeJSON(w, status, errorEnvelope(code, err.Error(), details))
}
