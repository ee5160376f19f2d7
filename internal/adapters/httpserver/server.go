package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"crypto/hmac"
	"crypto/sha256"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/facuvega/vitrina/internal/domain"
	"github.com/facuvega/vitrina/internal/usecase"
)

type Notifier interface {
	Notify(msg string)
}

type Server struct {
	mux       *http.ServeMux
	products  *usecase.ProductUC
	carts     *usecase.CartUC
	customers domain.CustomerRepo
	oauthCfg  *oauth2.Config
	notifier  Notifier

	adminAllowed map[string]struct{}
	adminSecret  []byte
}

func New(p *usecase.ProductUC, c *usecase.CartUC, customers domain.CustomerRepo, oauthCfg *oauth2.Config, notifier Notifier) http.Handler {
	s := &Server{
		mux:       http.NewServeMux(),
		products:  p,
		carts:     c,
		customers: customers,
		oauthCfg:  oauthCfg,
		notifier:  notifier,
	}

	allowed := map[string]struct{}{}
	if raw := os.Getenv("ADMIN_ALLOWED_EMAILS"); raw != "" {
		for _, e := range strings.Split(raw, ",") {
			e = strings.ToLower(strings.TrimSpace(e))
			if e != "" {
				allowed[e] = struct{}{}
			}
		}
	}
	s.adminAllowed = allowed
	sec := os.Getenv("JWT_ADMIN_SECRET")
	if sec == "" {
		sec = os.Getenv("SECRET_KEY")
	}
	if sec == "" {
		sec = "dev-admin-secret"
	}
	s.adminSecret = []byte(sec)

	s.routes()
	return Chain(s.mux,
		RateLimit(120),
		RequestID,
		Recovery,
		Logging,
	)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/cart", s.handleCart)
	s.mux.HandleFunc("/api/cart/merge", s.handleCartMerge)
	s.mux.HandleFunc("/api/cart/", s.handleCartItem)

	s.mux.HandleFunc("/api/products", s.apiProducts)
	s.mux.HandleFunc("/api/products/", s.apiProductBySlug)

	s.mux.HandleFunc("/admin/login", s.handleAdminLogin)
	s.mux.HandleFunc("/admin/export/variants", s.handleExportVariants)

	s.mux.HandleFunc("/auth/google/login", s.handleGoogleLogin)
	s.mux.HandleFunc("/auth/google/callback", s.handleGoogleCallback)
	s.mux.HandleFunc("/logout", s.handleLogout)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "ok"})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr mapea la taxonomía de errores del dominio a HTTP. Todo fallo
// produce exactamente un body JSON y deja el estado intacto.
func writeErr(w http.ResponseWriter, err error) {
	var vc *domain.VariantConflictError
	switch {
	case errors.As(err, &vc):
		writeJSON(w, 409, map[string]any{"error": "variant_conflict", "keys": vc.Keys, "cart_lines": vc.Lines})
	case errors.Is(err, domain.ErrWouldRemove):
		writeJSON(w, 409, map[string]any{"error": "would_remove"})
	case errors.Is(err, domain.ErrIdentityRequired):
		writeJSON(w, 401, map[string]any{"error": "identity_required"})
	case errors.Is(err, domain.ErrInvalidVariant):
		writeJSON(w, 422, map[string]any{"error": "invalid_variant"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, 404, map[string]any{"error": "not_found"})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidInventory):
		writeJSON(w, 400, map[string]any{"error": "invalid_input"})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, 409, map[string]any{"error": "conflict"})
	default:
		log.Error().Err(err).Msg("error interno")
		writeJSON(w, 500, map[string]any{"error": "internal", "retryable": true})
	}
}

// --- Carrito ---

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		id := identity(w, r)
		lines, err := s.carts.Get(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		total := 0.0
		for _, l := range lines {
			total += l.Subtotal
		}
		writeJSON(w, 200, map[string]any{"items": lines, "total": total})
	case http.MethodPost:
		var req struct {
			ProductID string `json:"product_id"`
			VariantID string `json:"variant_id"`
			Quantity  int    `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, domain.ErrInvalidInput)
			return
		}
		pid, err := uuid.Parse(req.ProductID)
		if err != nil {
			writeErr(w, domain.ErrInvalidInput)
			return
		}
		var vid *uuid.UUID
		if strings.TrimSpace(req.VariantID) != "" {
			v, err := uuid.Parse(req.VariantID)
			if err != nil {
				writeErr(w, domain.ErrInvalidVariant)
				return
			}
			vid = &v
		}
		id := identity(w, r)
		item, err := s.carts.AddItem(r.Context(), id, pid, vid, req.Quantity)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"item": item})
	default:
		http.Error(w, "method", 405)
	}
}

func (s *Server) handleCartItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/cart/")
	itemID, err := uuid.Parse(strings.Trim(rest, "/"))
	if err != nil {
		writeErr(w, domain.ErrInvalidInput)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Delta int `json:"delta"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, domain.ErrInvalidInput)
			return
		}
		qty, err := s.carts.AdjustQuantity(r.Context(), itemID, req.Delta)
		if errors.Is(err, domain.ErrWouldRemove) {
			// la cantidad vigente viaja junto al 409 para que el cliente
			// reconcilie su estado optimista
			writeJSON(w, 409, map[string]any{"error": "would_remove", "quantity": qty})
			return
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"quantity": qty})
	case http.MethodDelete:
		if err := s.carts.RemoveItem(r.Context(), itemID); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"status": "ok"})
	default:
		http.Error(w, "method", 405)
	}
}

func (s *Server) handleCartMerge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", 405)
		return
	}
	u := readUserSession(r)
	if u == nil {
		writeErr(w, domain.ErrIdentityRequired)
		return
	}
	tok := readSessionToken(r)
	if tok == "" {
		writeJSON(w, 200, map[string]any{"merged": false})
		return
	}
	merged, err := s.carts.Merge(r.Context(), tok, u.CustomerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	// el token ya consumió su merge (ahora o antes): rotarlo para que la
	// próxima sesión anónima no quede varada detrás del marcador
	clearSessionToken(w)
	writeJSON(w, 200, map[string]any{"merged": merged})
}

// --- Productos (superficie del comerciante) ---

type productPayload struct {
	Slug           string               `json:"slug"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	BasePrice      float64              `json:"base_price"`
	CompareAtPrice float64              `json:"compare_at_price"`
	CostPerItem    float64              `json:"cost_per_item"`
	Inventory      int                  `json:"inventory"`
	AllowBackorder bool                 `json:"allow_backorder"`
	Category       string               `json:"category"`
	Active         bool                 `json:"active"`
	Axes           domain.AxisSelection `json:"axes"`
	Stocks         map[string]int       `json:"stocks"`
	Force          bool                 `json:"force"`
}

func (s *Server) apiProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f := domain.ProductFilter{
			Category: r.URL.Query().Get("category"),
			Query:    r.URL.Query().Get("q"),
			Sort:     r.URL.Query().Get("sort"),
		}
		list, total, err := s.products.List(r.Context(), f)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"items": list, "total": total})
	case http.MethodPost:
		if !s.requireAdmin(w, r) {
			return
		}
		var req productPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, domain.ErrInvalidInput)
			return
		}
		p := &domain.Product{
			Slug:           strings.TrimSpace(req.Slug),
			Title:          strings.TrimSpace(req.Title),
			Description:    req.Description,
			BasePrice:      req.BasePrice,
			CompareAtPrice: req.CompareAtPrice,
			CostPerItem:    req.CostPerItem,
			Inventory:      req.Inventory,
			AllowBackorder: req.AllowBackorder,
			Category:       req.Category,
			Active:         req.Active,
		}
		if p.Slug != "" {
			if prev, err := s.products.GetBySlug(r.Context(), p.Slug); err == nil && prev != nil {
				p.ID = prev.ID
				p.CreatedAt = prev.CreatedAt
			}
		}
		res, err := s.products.SaveWithMatrix(r.Context(), p, req.Axes, req.Stocks, req.Force)
		if err != nil {
			writeErr(w, err)
			return
		}
		if res.RemovedCartLines > 0 && s.notifier != nil {
			s.notifier.Notify(fmt.Sprintf("Producto %s: cascadeo forzado eliminó %d líneas de carrito", p.Slug, res.RemovedCartLines))
		}
		writeJSON(w, 200, res)
	default:
		http.Error(w, "method", 405)
	}
}

func (s *Server) apiProductBySlug(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/products/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "path", 404)
		return
	}
	slug := parts[0]

	// GET /api/products/{slug}/matrix
	if len(parts) == 2 && parts[1] == "matrix" {
		if r.Method != http.MethodGet {
			http.Error(w, "method", 405)
			return
		}
		mv, err := s.products.Matrix(r.Context(), slug)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, mv)
		return
	}
	if len(parts) != 1 {
		http.Error(w, "path", 404)
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := s.products.GetBySlug(r.Context(), slug)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, p)
	case http.MethodDelete:
		if !s.requireAdmin(w, r) {
			return
		}
		if err := s.products.DeleteBySlug(r.Context(), slug); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"status": "ok"})
	default:
		http.Error(w, "method", 405)
	}
}

// --- Auth ---

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauthCfg == nil {
		http.Error(w, "oauth no configurado", 500)
		return
	}
	state := uuid.New().String()
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: state, Path: "/", MaxAge: 300, HttpOnly: true})
	http.Redirect(w, r, s.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOnline), 302)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauthCfg == nil {
		http.Error(w, "oauth no configurado", 500)
		return
	}
	q := r.URL.Query()
	c, _ := r.Cookie("oauth_state")
	if c == nil || c.Value == "" || c.Value != q.Get("state") {
		http.Error(w, "state", 400)
		return
	}
	tok, err := s.oauthCfg.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		log.Error().Err(err).Msg("exchange oauth")
		http.Error(w, "oauth", 400)
		return
	}
	client := s.oauthCfg.Client(r.Context(), tok)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v3/userinfo")
	if err != nil || resp.StatusCode != 200 {
		log.Error().Err(err).Msg("userinfo")
		http.Error(w, "userinfo", 400)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	_ = json.Unmarshal(body, &info)
	if info.Email == "" {
		http.Error(w, "email", 400)
		return
	}

	cust, err := s.customers.FindByEmail(r.Context(), info.Email)
	if errors.Is(err, domain.ErrNotFound) {
		cust = &domain.Customer{ID: uuid.New(), Email: info.Email, Name: info.Name}
		if err := s.customers.Save(r.Context(), cust); err != nil {
			writeErr(w, err)
			return
		}
	} else if err != nil {
		writeErr(w, err)
		return
	}
	writeUserSession(w, &sessionUser{CustomerID: cust.ID, Email: cust.Email, Name: cust.Name})

	// la identidad anónima acaba de autenticarse: disparar el merge.
	// Si falla, el POST /api/cart/merge idempotente es el reintento.
	if anonTok := readSessionToken(r); anonTok != "" {
		if _, err := s.carts.Merge(r.Context(), anonTok, cust.ID); err != nil {
			log.Error().Err(err).Msg("merge post-login falló")
			if s.notifier != nil {
				s.notifier.Notify("Merge de carrito falló para " + cust.Email)
			}
		} else {
			clearSessionToken(w)
		}
	}
	http.Redirect(w, r, "/", 302)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeUserSession(w, nil)
	clearSessionToken(w)
	http.Redirect(w, r, "/", 302)
}

// --- Admin ---

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", 405)
		return
	}
	cfgKey := os.Getenv("ADMIN_API_KEY")
	if cfgKey == "" {
		log.Error().Msg("ADMIN_API_KEY faltante")
		http.Error(w, "config", 500)
		return
	}
	apiKey := r.Header.Get("X-Admin-Key")
	if apiKey == "" || !secureCompare(apiKey, cfgKey) {
		http.Error(w, "unauthorized", 401)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" && len(s.adminAllowed) == 1 {
		for k := range s.adminAllowed {
			email = k
		}
	}
	if _, ok := s.adminAllowed[email]; !ok {
		http.Error(w, "forbidden", 403)
		return
	}
	tok, exp, err := s.issueAdminToken(email, 30*time.Minute)
	if err != nil {
		http.Error(w, "token", 500)
		return
	}
	writeJSON(w, 200, map[string]any{"token": tok, "exp": exp.Unix(), "email": email})
}

func (s *Server) issueAdminToken(email string, dur time.Duration) (string, time.Time, error) {
	head := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	exp := time.Now().Add(dur)
	claims := map[string]any{"sub": email, "email": email, "role": "admin", "exp": exp.Unix(), "iat": time.Now().Unix(), "iss": "vitrina"}
	b, _ := json.Marshal(claims)
	pay := base64.RawURLEncoding.EncodeToString(b)
	unsigned := head + "." + pay
	h := hmac.New(sha256.New, s.adminSecret)
	h.Write([]byte(unsigned))
	sig := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return unsigned + "." + sig, exp, nil
}

func (s *Server) verifyAdminToken(tok string) (string, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("formato")
	}
	unsigned := parts[0] + "." + parts[1]
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("sig")
	}
	h := hmac.New(sha256.New, s.adminSecret)
	h.Write([]byte(unsigned))
	if !hmac.Equal(sig, h.Sum(nil)) {
		return "", fmt.Errorf("firma")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("payload")
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", fmt.Errorf("json")
	}
	role, _ := m["role"].(string)
	email, _ := m["email"].(string)
	expF, _ := m["exp"].(float64)
	if role != "admin" || email == "" {
		return "", fmt.Errorf("claims")
	}
	if time.Now().Unix() > int64(expF) {
		return "", fmt.Errorf("exp")
	}
	if _, ok := s.adminAllowed[strings.ToLower(email)]; !ok {
		return "", fmt.Errorf("not allowed")
	}
	return email, nil
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	tok := r.Header.Get("Authorization")
	tok = strings.TrimPrefix(tok, "Bearer ")
	if tok == "" {
		http.Error(w, "unauthorized", 401)
		return false
	}
	if _, err := s.verifyAdminToken(tok); err != nil {
		http.Error(w, "unauthorized", 401)
		return false
	}
	return true
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := 0; i < len(a); i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
