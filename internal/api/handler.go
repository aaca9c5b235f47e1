package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"dawapos/m/domain"
	"dawapos/m/internal/cart"
	"dawapos/m/internal/catalog"
	"dawapos/m/internal/checkout"
	"dawapos/m/internal/credit"
	"dawapos/m/internal/prescription"
	"dawapos/m/internal/pricing"
	"dawapos/m/internal/stock"
)

type ctxKey string

const (
	ctxUserID   ctxKey = "userID"
	ctxUsername ctxKey = "username"
	ctxRole     ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db      *sqlx.DB
	secret  string
	catalog *catalog.Store
	stock   *stock.Ledger
	carts   *cart.Store
	presc   *prescription.Store
	credit  *credit.Ledger
	engine  *checkout.Engine
}

// New constructs a Handler with its component stack.
func New(db *sqlx.DB, secret string) *Handler {
	ledger := stock.NewLedger(db)
	creditLedger := credit.NewLedger(db)
	prescStore := prescription.NewStore(db)
	return &Handler{
		db:      db,
		secret:  secret,
		catalog: catalog.NewStore(db),
		stock:   ledger,
		carts:   cart.NewStore(),
		presc:   prescStore,
		credit:  creditLedger,
		engine:  checkout.NewEngine(db, ledger, creditLedger, prescStore),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/catalog", func(r chi.Router) {
			r.Get("/", h.listCatalog)
			r.Post("/", h.createCatalogItem)
			r.Get("/categories", h.listCategories)
			r.Get("/{id}", h.getCatalogItem)
			r.Post("/{id}/stock", h.adjustStock)
			r.Get("/{id}/ledger", h.stockLedger)
		})

		pr.Get("/stock/alerts", h.lowStockAlerts)

		pr.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/lines", h.addCartLine)
			r.Patch("/lines/{id}", h.adjustCartLine)
			r.Delete("/lines/{id}", h.removeCartLine)
			r.Put("/customer", h.setCartCustomer)
			r.Post("/prescription/{id}", h.resolvePrescriptionIntoCart)
		})

		pr.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", h.createPrescription)
			r.Get("/pending", h.listPendingPrescriptions)
		})

		pr.Post("/checkout", h.checkout)

		pr.Route("/credit", func(r chi.Router) {
			r.Get("/", h.listOpenCredit)
			r.Get("/{id}", h.getCreditAccount)
			r.Post("/{id}/payments", h.recordCreditPayment)
		})

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/sales/daily", h.dailySales)
			r.Get("/sales/monthly", h.monthlySales)
			r.Get("/sales", h.salesReport)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, username, role string) (string, error) {
	claims := authClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func operatorFromContext(r *http.Request) checkout.Operator {
	op := checkout.Operator{}
	if v := r.Context().Value(ctxUserID); v != nil {
		op.ID = v.(int64)
	}
	if v := r.Context().Value(ctxUsername); v != nil {
		op.Name = v.(string)
	}
	if v := r.Context().Value(ctxRole); v != nil {
		op.Role = v.(string)
	}
	return op
}

// Auth Handlers

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "username, email, password and role are required")
		return
	}
	if req.Role != "owner" && req.Role != "cashier" {
		respondError(w, http.StatusBadRequest, "role must be owner or cashier")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	var userID int64
	err = h.db.QueryRowx(`INSERT INTO users (username, email, password, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		req.Username, strings.ToLower(req.Email), hashed, req.Role).Scan(&userID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate key") {
			respondError(w, http.StatusConflict, "email already exists")
		} else {
			respondError(w, http.StatusInternalServerError, "unable to create user")
		}
		return
	}

	token, err := h.generateToken(userID, req.Username, req.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: domain.User{
		ID: userID, Username: req.Username, Email: strings.ToLower(req.Email), Role: req.Role,
	}})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.Get(&user, `SELECT id, username, email, password, role FROM users WHERE email = $1`, strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(user.ID, user.Username, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	uid := r.Context().Value(ctxUserID).(int64)
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.Exec(`UPDATE users SET password = $1 WHERE id = $2`, hashed, uid); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Catalog handlers

type unitRequest struct {
	Type         domain.UnitType `json:"type"`
	BaseQuantity int64           `json:"base_quantity"`
}

type catalogItemRequest struct {
	Name            string          `json:"name"`
	GenericName     string          `json:"generic_name"`
	Category        string          `json:"category"`
	ReorderLevel    int64           `json:"reorder_level"`
	CostPrice       float64         `json:"cost_price"`
	Units           []unitRequest   `json:"units"`
	SourceUnit      domain.UnitType `json:"source_unit"`
	SourceUnitPrice float64         `json:"source_unit_price"`
	OpeningStock    int64           `json:"opening_stock"`
}

func (h *Handler) createCatalogItem(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "owner") {
		return
	}
	var req catalogItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || len(req.Units) == 0 {
		respondError(w, http.StatusBadRequest, "name and at least one unit are required")
		return
	}
	if req.ReorderLevel < 0 || req.CostPrice < 0 || req.SourceUnitPrice < 0 {
		respondError(w, http.StatusBadRequest, "reorder_level, cost_price and source_unit_price must not be negative")
		return
	}

	units := make([]domain.UnitDefinition, len(req.Units))
	var sourceBase int64
	baseUnits := 0
	for i, u := range req.Units {
		units[i] = domain.UnitDefinition{Type: u.Type, BaseQuantity: u.BaseQuantity}
		if u.Type == req.SourceUnit {
			sourceBase = u.BaseQuantity
		}
		if u.BaseQuantity == 1 {
			baseUnits++
		}
	}
	if baseUnits != 1 {
		respondError(w, http.StatusBadRequest, "exactly one unit must have base_quantity 1")
		return
	}
	if sourceBase == 0 {
		respondError(w, http.StatusBadRequest, "source_unit must be one of the declared units")
		return
	}

	perBase, err := pricing.DerivePricePerBase(decimal.NewFromFloat(req.SourceUnitPrice), sourceBase)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	units = pricing.DeriveAllUnitPrices(perBase, units)

	item := &domain.CatalogItem{
		Name:         req.Name,
		GenericName:  req.GenericName,
		Category:     req.Category,
		ReorderLevel: req.ReorderLevel,
		CostPrice:    req.CostPrice,
		Units:        units,
	}
	id, err := h.catalog.Create(r.Context(), item)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create catalog item")
		return
	}

	if req.OpeningStock > 0 {
		op := operatorFromContext(r)
		if _, err := h.stock.Append(r.Context(), domain.StockEvent{
			ItemID: id, Delta: req.OpeningStock, Reason: domain.StockPurchase,
			PerformedBy: op.ID, PerformedByRole: op.Role,
		}); err != nil {
			respondError(w, http.StatusInternalServerError, "unable to record opening stock")
			return
		}
	}

	created, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load created item")
		return
	}
	resp := map[string]any{"item": created}
	perBaseFloat, _ := perBase.Float64()
	resp["price_per_base_unit"] = perBaseFloat
	if markup, ok := pricing.MarkupPercent(decimal.NewFromFloat(req.CostPrice), perBase); ok {
		m, _ := markup.Round(2).Float64()
		resp["markup_percent"] = m
	} else {
		resp["markup_percent"] = nil
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list catalog")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list categories")
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *Handler) getCatalogItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	item, err := h.catalog.Get(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load item")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"item":         item,
		"low_stock":    stock.LowStock(item, item.OnHand),
		"out_of_stock": stock.OutOfStock(item.OnHand),
	})
}

// Stock handlers

type stockAdjustRequest struct {
	Delta  int64              `json:"delta"`
	Reason domain.StockReason `json:"reason"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "owner", "cashier") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	var req stockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Delta == 0 {
		respondError(w, http.StatusBadRequest, "delta must not be zero")
		return
	}
	switch req.Reason {
	case domain.StockPurchase, domain.StockAdjustment, domain.StockLoss,
		domain.StockReturn, domain.StockExpired, domain.StockInternalUse:
	default:
		respondError(w, http.StatusBadRequest, "invalid stock reason")
		return
	}

	if _, err := h.catalog.Get(r.Context(), id); errors.Is(err, catalog.ErrNotFound) {
		respondError(w, http.StatusNotFound, "item not found")
		return
	} else if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load item")
		return
	}

	op := operatorFromContext(r)
	balance, err := h.stock.Append(r.Context(), domain.StockEvent{
		ItemID: id, Delta: req.Delta, Reason: req.Reason,
		PerformedBy: op.ID, PerformedByRole: op.Role,
	})
	var insufficient *stock.InsufficientStockError
	if errors.As(err, &insufficient) {
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":     insufficient.Error(),
			"available": insufficient.Available,
		})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to record stock event")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"balance": balance})
}

func (h *Handler) stockLedger(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	events, err := h.stock.History(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stock ledger")
		return
	}
	respondJSON(w, http.StatusOK, events)
}

func (h *Handler) lowStockAlerts(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.LowStock(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stock alerts")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// Cart handlers

func (h *Handler) cartResponse(c *domain.Cart, discount, tax float64) map[string]any {
	return map[string]any{
		"cart":   c,
		"totals": cart.ComputeTotals(c, discount, tax),
	}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r)
	c, release := h.carts.Acquire(op.ID)
	defer release()
	discount, _ := strconv.ParseFloat(r.URL.Query().Get("discount"), 64)
	tax, _ := strconv.ParseFloat(r.URL.Query().Get("tax"), 64)
	respondJSON(w, http.StatusOK, h.cartResponse(c, discount, tax))
}

type addLineRequest struct {
	ItemID   int64           `json:"item_id"`
	UnitType domain.UnitType `json:"unit_type"`
	Quantity int64           `json:"quantity"`
}

func (h *Handler) addCartLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := h.catalog.Get(r.Context(), req.ItemID)
	if errors.Is(err, catalog.ErrNotFound) {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load item")
		return
	}
	// Out-of-stock items are not offered for sale at all; carts built
	// against non-zero stock are still re-validated at checkout.
	if stock.OutOfStock(item.OnHand) {
		respondError(w, http.StatusConflict, "item is out of stock")
		return
	}

	op := operatorFromContext(r)
	c, release := h.carts.Acquire(op.ID)
	defer release()
	line, err := cart.AddLine(c, item, req.UnitType, req.Quantity)
	if errors.Is(err, cart.ErrUnitNotFound) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to add cart line")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"line": line, "cart": c})
}

type adjustLineRequest struct {
	Delta int64 `json:"delta"`
}

func (h *Handler) adjustCartLine(w http.ResponseWriter, r *http.Request) {
	var req adjustLineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	op := operatorFromContext(r)
	c, release := h.carts.Acquire(op.ID)
	defer release()
	line, err := cart.AdjustQuantity(c, chi.URLParam(r, "id"), req.Delta)
	if errors.Is(err, cart.ErrLineNotFound) {
		respondError(w, http.StatusNotFound, "cart line not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to adjust cart line")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"line": line, "cart": c})
}

func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r)
	c, release := h.carts.Acquire(op.ID)
	defer release()
	if err := cart.RemoveLine(c, chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusNotFound, "cart line not found")
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse(c, 0, 0))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r)
	c, release := h.carts.Acquire(op.ID)
	defer release()
	cart.Clear(c)
	respondJSON(w, http.StatusOK, h.cartResponse(c, 0, 0))
}

type cartCustomerRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
}

func (h *Handler) setCartCustomer(w http.ResponseWriter, r *http.Request) {
	var req cartCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	op := operatorFromContext(r)
	c, release := h.carts.Acquire(op.ID)
	defer release()
	c.CustomerName = req.CustomerName
	c.CustomerPhone = req.CustomerPhone
	respondJSON(w, http.StatusOK, h.cartResponse(c, 0, 0))
}

// Prescription handlers

type prescriptionItemRequest struct {
	MedicineText  string `json:"medicine_text"`
	DosageText    string `json:"dosage_text"`
	FrequencyText string `json:"frequency_text"`
	DurationText  string `json:"duration_text"`
	Instructions  string `json:"instructions"`
}

type prescriptionRequest struct {
	PatientName  string                    `json:"patient_name"`
	PatientPhone string                    `json:"patient_phone"`
	Diagnosis    string                    `json:"diagnosis"`
	Notes        string                    `json:"notes"`
	Items        []prescriptionItemRequest `json:"items"`
}

func (h *Handler) createPrescription(w http.ResponseWriter, r *http.Request) {
	var req prescriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PatientName == "" || len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "patient_name and items are required")
		return
	}
	p := &domain.Prescription{
		PatientName:  req.PatientName,
		PatientPhone: req.PatientPhone,
		Diagnosis:    req.Diagnosis,
		Notes:        req.Notes,
	}
	for _, item := range req.Items {
		p.Items = append(p.Items, domain.PrescriptionItem{
			MedicineText:  item.MedicineText,
			DosageText:    item.DosageText,
			FrequencyText: item.FrequencyText,
			DurationText:  item.DurationText,
			Instructions:  item.Instructions,
		})
	}
	id, err := h.presc.Create(r.Context(), p)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create prescription")
		return
	}
	created, err := h.presc.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load prescription")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) listPendingPrescriptions(w http.ResponseWriter, r *http.Request) {
	pending, err := h.presc.ListPending(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list prescriptions")
		return
	}
	respondJSON(w, http.StatusOK, pending)
}

type resolvedLineResponse struct {
	ItemID    int64           `json:"item_id"`
	ItemName  string          `json:"item_name"`
	UnitType  domain.UnitType `json:"unit_type"`
	Requested int64           `json:"requested"`
	Quantity  int64           `json:"quantity"`
	Shortfall int64           `json:"shortfall"`
}

func (h *Handler) resolvePrescriptionIntoCart(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}
	p, err := h.presc.Get(r.Context(), id)
	if errors.Is(err, prescription.ErrNotFound) {
		respondError(w, http.StatusNotFound, "prescription not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load prescription")
		return
	}
	if p.Status == domain.PrescriptionDispensed {
		respondError(w, http.StatusConflict, "prescription already dispensed")
		return
	}

	items, err := h.catalog.List(r.Context(), "")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load catalog")
		return
	}

	result := prescription.Resolve(p, items)

	op := operatorFromContext(r)
	c, release := h.carts.Acquire(op.ID)
	defer release()
	resolved := make([]resolvedLineResponse, 0, len(result.Lines))
	for _, line := range result.Lines {
		if line.Quantity == 0 {
			continue
		}
		if _, err := cart.AddLine(c, line.Item, line.UnitType, line.Quantity); err != nil {
			respondError(w, http.StatusInternalServerError, "unable to add resolved line")
			return
		}
		resolved = append(resolved, resolvedLineResponse{
			ItemID: line.Item.ID, ItemName: line.Item.Name, UnitType: line.UnitType,
			Requested: line.Requested, Quantity: line.Quantity, Shortfall: line.Shortfall,
		})
	}
	c.SourcePrescriptionID = &p.ID
	if c.CustomerName == "" {
		c.CustomerName = p.PatientName
		c.CustomerPhone = p.PatientPhone
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cart":      c,
		"lines":     resolved,
		"unmatched": result.Unmatched,
	})
}

// Checkout handler

type checkoutRequest struct {
	PaymentMethod string  `json:"payment_method"`
	Discount      float64 `json:"discount"`
	Tax           float64 `json:"tax"`
	AllowPartial  bool    `json:"allow_partial"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "owner", "cashier") {
		return
	}
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentMethod == "" {
		respondError(w, http.StatusBadRequest, "payment_method is required")
		return
	}

	op := operatorFromContext(r)
	c, release := h.carts.Acquire(op.ID)
	defer release()
	sale, err := h.engine.Commit(r.Context(), c, checkout.Options{
		PaymentMethod: req.PaymentMethod,
		Discount:      req.Discount,
		Tax:           req.Tax,
		AllowPartial:  req.AllowPartial,
		Operator:      op,
	})

	var race *checkout.StockRaceError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "cart is empty")
	case errors.As(err, &race) && sale != nil:
		// Partial commit: the sale covers the deducted prefix.
		respondJSON(w, http.StatusCreated, map[string]any{
			"sale":      sale,
			"partial":   true,
			"shortages": race.Shortages,
		})
	case errors.As(err, &race):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":     race.Error(),
			"shortages": race.Shortages,
			"deducted":  race.Deducted,
		})
	case err != nil:
		respondError(w, http.StatusInternalServerError, "unable to complete checkout")
	default:
		respondJSON(w, http.StatusCreated, map[string]any{"sale": sale})
	}
}

// Credit handlers

func (h *Handler) listOpenCredit(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.credit.ListOpen(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list credit accounts")
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *Handler) getCreditAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid credit account id")
		return
	}
	acc, err := h.credit.Get(r.Context(), id)
	if errors.Is(err, credit.ErrNotFound) {
		respondError(w, http.StatusNotFound, "credit account not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load credit account")
		return
	}
	respondJSON(w, http.StatusOK, acc)
}

type creditPaymentRequest struct {
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
}

func (h *Handler) recordCreditPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid credit account id")
		return
	}
	var req creditPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Method == "" {
		req.Method = "cash"
	}

	acc, err := h.credit.RecordPayment(r.Context(), id, req.Amount, req.Method)
	var exceeds *credit.ExceedsBalanceError
	switch {
	case errors.Is(err, credit.ErrNotFound):
		respondError(w, http.StatusNotFound, "credit account not found")
	case errors.Is(err, credit.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "amount must be positive")
	case errors.Is(err, credit.ErrAlreadyPaid):
		respondError(w, http.StatusConflict, "credit account already settled")
	case errors.As(err, &exceeds):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":   exceeds.Error(),
			"balance": exceeds.Balance,
		})
	case err != nil:
		respondError(w, http.StatusInternalServerError, "unable to record payment")
	default:
		respondJSON(w, http.StatusCreated, acc)
	}
}

// Reports

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	query := `SELECT COALESCE(SUM(total),0), COUNT(*) FROM sales WHERE DATE(created_at) = DATE('now')`
	if h.db.DriverName() == "pgx" {
		query = `SELECT COALESCE(SUM(total),0), COUNT(*) FROM sales WHERE created_at::date = CURRENT_DATE`
	}
	var revenue float64
	var count int64
	if err := h.db.QueryRow(query).Scan(&revenue, &count); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch daily sales")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"revenue": revenue, "sales_count": count})
}

func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	query := `SELECT COALESCE(SUM(total),0), COUNT(*) FROM sales WHERE strftime('%Y-%m', created_at) = strftime('%Y-%m', 'now')`
	if h.db.DriverName() == "pgx" {
		query = `SELECT COALESCE(SUM(total),0), COUNT(*) FROM sales WHERE date_trunc('month', created_at) = date_trunc('month', now())`
	}
	var revenue float64
	var count int64
	if err := h.db.QueryRow(query).Scan(&revenue, &count); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch monthly sales")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"revenue": revenue, "sales_count": count})
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "owner") {
		return
	}

	var (
		args    []any
		clauses []string
	)
	startDate := strings.TrimSpace(r.URL.Query().Get("start_date"))
	if startDate != "" {
		if _, err := time.Parse("2006-01-02", startDate); err != nil {
			respondError(w, http.StatusBadRequest, "start_date must be in YYYY-MM-DD format")
			return
		}
		args = append(args, startDate)
		clauses = append(clauses, fmt.Sprintf("DATE(created_at) >= $%d", len(args)))
	}
	endDate := strings.TrimSpace(r.URL.Query().Get("end_date"))
	if endDate != "" {
		if _, err := time.Parse("2006-01-02", endDate); err != nil {
			respondError(w, http.StatusBadRequest, "end_date must be in YYYY-MM-DD format")
			return
		}
		args = append(args, endDate)
		clauses = append(clauses, fmt.Sprintf("DATE(created_at) <= $%d", len(args)))
	}

	query := `SELECT id, subtotal, discount, tax, total, payment_method, cashier_id, cashier_name, customer_name, customer_phone, created_at FROM sales`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var sales []domain.Sale
	if err := h.db.Select(&sales, query, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch sales report")
		return
	}
	if len(sales) == 0 {
		respondJSON(w, http.StatusOK, []domain.Sale{})
		return
	}

	ids := make([]int64, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
	}
	itemsQuery, itemsArgs, err := sqlx.In(
		`SELECT id, sale_id, item_id, item_name, unit_type, quantity, unit_price, subtotal
		 FROM sale_items WHERE sale_id IN (?)`, ids)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to prepare sale items query")
		return
	}
	itemsQuery = h.db.Rebind(itemsQuery)

	var rows []domain.SaleItem
	if err := h.db.Select(&rows, itemsQuery, itemsArgs...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load sale items")
		return
	}
	itemsBySale := make(map[int64][]domain.SaleItem)
	for _, row := range rows {
		itemsBySale[row.SaleID] = append(itemsBySale[row.SaleID], row)
	}
	for i := range sales {
		sales[i].Items = itemsBySale[sales[i].ID]
	}
	respondJSON(w, http.StatusOK, sales)
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
