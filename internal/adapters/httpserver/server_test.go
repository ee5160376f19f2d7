package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/facuvega/vitrina/internal/domain"
	"github.com/facuvega/vitrina/internal/usecase"
)

type memCartRepo struct {
	mu     sync.Mutex
	carts  map[string]*domain.Cart
	items  map[uuid.UUID]*domain.CartItem
	merged map[string]bool
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: map[string]*domain.Cart{}, items: map[uuid.UUID]*domain.CartItem{}, merged: map[string]bool{}}
}

func ownerKey(id domain.Identity) string {
	if id.CustomerID != nil {
		return "u:" + id.CustomerID.String()
	}
	return "s:" + id.SessionToken
}

func lineKey(productID uuid.UUID, variantID *uuid.UUID) string {
	k := productID.String() + "|"
	if variantID != nil {
		k += variantID.String()
	}
	return k
}

func (m *memCartRepo) Resolve(ctx context.Context, id domain.Identity) (*domain.Cart, error) {
	if id.Empty() {
		return nil, domain.ErrIdentityRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := ownerKey(id)
	if c, ok := m.carts[k]; ok {
		return c, nil
	}
	c := &domain.Cart{ID: uuid.New()}
	if id.CustomerID != nil {
		cid := *id.CustomerID
		c.CustomerID = &cid
	} else {
		tok := id.SessionToken
		c.SessionToken = &tok
	}
	m.carts[k] = c
	return c, nil
}

func (m *memCartRepo) AddItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int, unitPrice float64) (*domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.CartID == cartID && lineKey(it.ProductID, it.VariantID) == lineKey(productID, variantID) {
			it.Qty += qty
			cp := *it
			return &cp, nil
		}
	}
	it := &domain.CartItem{ID: uuid.New(), CartID: cartID, ProductID: productID, VariantID: variantID, Qty: qty, UnitPrice: unitPrice}
	m.items[it.ID] = it
	cp := *it
	return &cp, nil
}

func (m *memCartRepo) AdjustQuantity(ctx context.Context, itemID uuid.UUID, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	n := it.Qty + delta
	if n < 1 {
		return it.Qty, domain.ErrWouldRemove
	}
	it.Qty = n
	return n, nil
}

func (m *memCartRepo) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemID)
	return nil
}

func (m *memCartRepo) Merge(ctx context.Context, sessionToken string, customerID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.merged[sessionToken] {
		return false, nil
	}
	m.merged[sessionToken] = true
	anon, ok := m.carts["s:"+sessionToken]
	if !ok {
		return true, nil
	}
	uk := "u:" + customerID.String()
	user, ok := m.carts[uk]
	if !ok {
		cid := customerID
		user = &domain.Cart{ID: uuid.New(), CustomerID: &cid}
		m.carts[uk] = user
	}
	for _, it := range m.items {
		if it.CartID != anon.ID {
			continue
		}
		var match *domain.CartItem
		for _, uit := range m.items {
			if uit.CartID == user.ID && lineKey(uit.ProductID, uit.VariantID) == lineKey(it.ProductID, it.VariantID) {
				match = uit
				break
			}
		}
		if match != nil {
			match.Qty += it.Qty
			delete(m.items, it.ID)
			continue
		}
		it.CartID = user.ID
	}
	delete(m.carts, "s:"+sessionToken)
	return true, nil
}

func (m *memCartRepo) Items(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CartItem
	for _, it := range m.items {
		if it.CartID == cartID {
			out = append(out, *it)
		}
	}
	return out, nil
}

type memProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	variants map[uuid.UUID]*domain.Variant
	carts    *memCartRepo
}

func newMemProductRepo(carts *memCartRepo) *memProductRepo {
	return &memProductRepo{products: map[uuid.UUID]*domain.Product{}, variants: map[uuid.UUID]*domain.Variant{}, carts: carts}
}

func (m *memProductRepo) Save(ctx context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memProductRepo) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Slug == slug {
			cp := *p
			for _, v := range m.variants {
				if v.ProductID == p.ID {
					cp.Variants = append(cp.Variants, *v)
				}
			}
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memProductRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProductRepo) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, int64(len(out)), nil
}

func (m *memProductRepo) ListVariants(ctx context.Context, productID uuid.UUID) ([]domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Variant
	for _, v := range m.variants {
		if v.ProductID == productID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memProductRepo) FindVariant(ctx context.Context, variantID uuid.UUID) (*domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[variantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memProductRepo) SaveWithVariants(ctx context.Context, p *domain.Product, rec domain.Reconciliation, force bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removedLines int64
	if len(rec.Removed) > 0 {
		removedIDs := map[uuid.UUID]bool{}
		for _, v := range rec.Removed {
			removedIDs[v.ID] = true
		}
		var keys []string
		lines := 0
		var refItems []uuid.UUID
		m.carts.mu.Lock()
		for _, it := range m.carts.items {
			if it.VariantID != nil && removedIDs[*it.VariantID] {
				lines++
				refItems = append(refItems, it.ID)
			}
		}
		m.carts.mu.Unlock()
		if lines > 0 && !force {
			for _, v := range rec.Removed {
				keys = append(keys, v.Key)
			}
			return 0, &domain.VariantConflictError{Keys: keys, Lines: lines}
		}
		m.carts.mu.Lock()
		for _, id := range refItems {
			delete(m.carts.items, id)
			removedLines++
		}
		m.carts.mu.Unlock()
		for id := range removedIDs {
			delete(m.variants, id)
		}
	}
	pcp := *p
	m.products[p.ID] = &pcp
	for i := range rec.Variants {
		cp := rec.Variants[i]
		m.variants[cp.ID] = &cp
	}
	return removedLines, nil
}

func (m *memProductRepo) DeleteBySlug(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.products {
		if p.Slug == slug {
			delete(m.products, id)
			return nil
		}
	}
	return domain.ErrNotFound
}

type memCustomerRepo struct {
	mu    sync.Mutex
	byEml map[string]*domain.Customer
}

func (m *memCustomerRepo) FindByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byEml[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (m *memCustomerRepo) Save(ctx context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEml[c.Email] = c
	return nil
}

func newTestServer() (http.Handler, *memProductRepo, *memCartRepo) {
	carts := newMemCartRepo()
	products := newMemProductRepo(carts)
	h := New(
		&usecase.ProductUC{Products: products},
		&usecase.CartUC{Carts: carts, Products: products},
		&memCustomerRepo{byEml: map[string]*domain.Customer{}},
		nil, nil,
	)
	return h, products, carts
}

func seedProduct(t *testing.T, repo *memProductRepo, slug string) (*domain.Product, *domain.Variant) {
	t.Helper()
	p := &domain.Product{ID: uuid.New(), Slug: slug, Title: slug, BasePrice: 1500, Active: true}
	if err := repo.Save(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	v := &domain.Variant{
		ID: uuid.New(), ProductID: p.ID,
		Size: "S", Color: "Rojo",
		Key: domain.VariantKey("S", "Rojo", ""), Stock: 10,
	}
	repo.mu.Lock()
	repo.variants[v.ID] = v
	repo.mu.Unlock()
	return p, v
}

// do ejecuta el request contra el handler arrastrando las cookies que el
// server fue seteando, como haría un browser.
func do(t *testing.T, h http.Handler, jar map[string]*http.Cookie, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	for _, c := range jar {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(jar, c.Name)
			continue
		}
		jar[c.Name] = c
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("body no es JSON: %q", rec.Body.String())
	}
	return m
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestServer()
	rec := do(t, h, map[string]*http.Cookie{}, http.MethodGet, "/healthz", nil)
	if rec.Code != 200 {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestCartMintsSessionToken(t *testing.T) {
	h, _, _ := newTestServer()
	jar := map[string]*http.Cookie{}
	rec := do(t, h, jar, http.MethodGet, "/api/cart", nil)
	if rec.Code != 200 {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	if _, ok := jar["sid"]; !ok {
		t.Fatal("no se acuñó cookie de sesión anónima")
	}

	// el mismo jar no debe acuñar otro token
	sid := jar["sid"].Value
	do(t, h, jar, http.MethodGet, "/api/cart", nil)
	if jar["sid"].Value != sid {
		t.Fatal("el token de sesión cambió entre requests")
	}
}

func TestCartAddAdjustRemoveFlow(t *testing.T) {
	h, products, _ := newTestServer()
	p, v := seedProduct(t, products, "remera")
	jar := map[string]*http.Cookie{}

	rec := do(t, h, jar, http.MethodPost, "/api/cart", map[string]any{
		"product_id": p.ID.String(), "variant_id": v.ID.String(), "quantity": 1,
	})
	if rec.Code != 200 {
		t.Fatalf("add: code = %d, body = %s", rec.Code, rec.Body.String())
	}
	item, _ := decode(t, rec)["item"].(map[string]any)
	itemID, _ := item["ID"].(string)
	if itemID == "" {
		t.Fatalf("sin item en la respuesta: %s", rec.Body.String())
	}

	rec = do(t, h, jar, http.MethodGet, "/api/cart", nil)
	body := decode(t, rec)
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", body)
	}
	line := items[0].(map[string]any)
	if line["title"] != "remera" || line["size"] != "S" || line["color"] != "Rojo" {
		t.Fatalf("proyección incompleta: %v", line)
	}
	if body["total"].(float64) != 1500 {
		t.Fatalf("total = %v", body["total"])
	}

	// bajar de 1 no elimina: 409 con la cantidad vigente
	rec = do(t, h, jar, http.MethodPut, "/api/cart/"+itemID, map[string]any{"delta": -1})
	if rec.Code != 409 {
		t.Fatalf("decremento en 1: code = %d", rec.Code)
	}
	b := decode(t, rec)
	if b["error"] != "would_remove" || b["quantity"].(float64) != 1 {
		t.Fatalf("body 409 = %v", b)
	}

	rec = do(t, h, jar, http.MethodPut, "/api/cart/"+itemID, map[string]any{"delta": 2})
	if rec.Code != 200 || decode(t, rec)["quantity"].(float64) != 3 {
		t.Fatalf("incremento: code = %d, body = %s", rec.Code, rec.Body.String())
	}

	// la eliminación explícita es idempotente
	if rec = do(t, h, jar, http.MethodDelete, "/api/cart/"+itemID, nil); rec.Code != 200 {
		t.Fatalf("delete: code = %d", rec.Code)
	}
	if rec = do(t, h, jar, http.MethodDelete, "/api/cart/"+itemID, nil); rec.Code != 200 {
		t.Fatalf("delete repetido: code = %d", rec.Code)
	}
	rec = do(t, h, jar, http.MethodGet, "/api/cart", nil)
	if items, _ := decode(t, rec)["items"].([]any); len(items) != 0 {
		t.Fatalf("el carrito no quedó vacío: %v", items)
	}
}

func TestCartRejectsInvalidVariant(t *testing.T) {
	h, products, _ := newTestServer()
	p, _ := seedProduct(t, products, "remera")
	_, otherV := seedProduct(t, products, "pantalon")
	jar := map[string]*http.Cookie{}

	rec := do(t, h, jar, http.MethodPost, "/api/cart", map[string]any{
		"product_id": p.ID.String(), "variant_id": otherV.ID.String(),
	})
	if rec.Code != 422 {
		t.Fatalf("variante ajena: code = %d", rec.Code)
	}
	rec = do(t, h, jar, http.MethodPost, "/api/cart", map[string]any{
		"product_id": p.ID.String(), "variant_id": "no-es-uuid",
	})
	if rec.Code != 422 {
		t.Fatalf("variante malformada: code = %d", rec.Code)
	}
	rec = do(t, h, jar, http.MethodPut, "/api/cart/no-es-uuid", map[string]any{"delta": 1})
	if rec.Code != 400 {
		t.Fatalf("item malformado: code = %d", rec.Code)
	}
}

func TestMergeEndpoint(t *testing.T) {
	h, products, _ := newTestServer()
	p, v := seedProduct(t, products, "remera")

	// sin sesión de usuario el merge no tiene destino
	rec := do(t, h, map[string]*http.Cookie{}, http.MethodPost, "/api/cart/merge", nil)
	if rec.Code != 401 {
		t.Fatalf("sin login: code = %d", rec.Code)
	}

	// sesión de usuario firmada, sin carrito anónimo previo
	custID := uuid.New()
	sessRec := httptest.NewRecorder()
	writeUserSession(sessRec, &sessionUser{CustomerID: custID, Email: "a@b.c", Name: "A"})
	jar := map[string]*http.Cookie{}
	for _, c := range sessRec.Result().Cookies() {
		jar[c.Name] = c
	}
	rec = do(t, h, jar, http.MethodPost, "/api/cart/merge", nil)
	if rec.Code != 200 || decode(t, rec)["merged"] != false {
		t.Fatalf("sin token anónimo: code = %d, body = %s", rec.Code, rec.Body.String())
	}

	// carrito anónimo con un item, luego login: el merge aplica una vez
	anonJar := map[string]*http.Cookie{}
	rec = do(t, h, anonJar, http.MethodPost, "/api/cart", map[string]any{
		"product_id": p.ID.String(), "variant_id": v.ID.String(), "quantity": 2,
	})
	if rec.Code != 200 {
		t.Fatalf("add anónimo: %d", rec.Code)
	}
	anonJar["sess"] = jar["sess"]

	rec = do(t, h, anonJar, http.MethodPost, "/api/cart/merge", nil)
	if rec.Code != 200 || decode(t, rec)["merged"] != true {
		t.Fatalf("primer merge: code = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, anonJar, http.MethodPost, "/api/cart/merge", nil)
	if rec.Code != 200 || decode(t, rec)["merged"] != false {
		t.Fatalf("segundo merge debe ser no-op: body = %s", rec.Body.String())
	}

	// con sesión de usuario el carrito muestra lo plegado
	rec = do(t, h, anonJar, http.MethodGet, "/api/cart", nil)
	items, _ := decode(t, rec)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["qty"].(float64) != 2 {
		t.Fatalf("carrito post-merge: %s", rec.Body.String())
	}
}

func TestMergeRotatesTokenAcrossSessions(t *testing.T) {
	h, products, _ := newTestServer()
	p, v := seedProduct(t, products, "remera")

	custID := uuid.New()
	sessRec := httptest.NewRecorder()
	writeUserSession(sessRec, &sessionUser{CustomerID: custID, Email: "a@b.c", Name: "A"})
	sess := sessRec.Result().Cookies()[0]

	// primer ciclo anónimo: una unidad, login, merge
	jar := map[string]*http.Cookie{}
	rec := do(t, h, jar, http.MethodPost, "/api/cart", map[string]any{
		"product_id": p.ID.String(), "variant_id": v.ID.String(), "quantity": 1,
	})
	if rec.Code != 200 {
		t.Fatalf("add: %d", rec.Code)
	}
	jar["sess"] = sess
	rec = do(t, h, jar, http.MethodPost, "/api/cart/merge", nil)
	if rec.Code != 200 || decode(t, rec)["merged"] != true {
		t.Fatalf("primer merge: %s", rec.Body.String())
	}
	// el token consumido no sobrevive al merge
	if _, ok := jar["sid"]; ok {
		t.Fatal("la cookie sid sobrevivió al merge")
	}

	// logout limpia sesión y token
	do(t, h, jar, http.MethodGet, "/logout", nil)
	if _, ok := jar["sess"]; ok {
		t.Fatal("la cookie sess sobrevivió al logout")
	}

	// segundo ciclo anónimo con token fresco: cinco unidades
	rec = do(t, h, jar, http.MethodPost, "/api/cart", map[string]any{
		"product_id": p.ID.String(), "variant_id": v.ID.String(), "quantity": 5,
	})
	if rec.Code != 200 {
		t.Fatalf("segundo add anónimo: %d", rec.Code)
	}
	if _, ok := jar["sid"]; !ok {
		t.Fatal("no se acuñó token nuevo para la segunda sesión")
	}

	// re-login: el segundo merge también debe plegar
	jar["sess"] = sess
	rec = do(t, h, jar, http.MethodPost, "/api/cart/merge", nil)
	if rec.Code != 200 || decode(t, rec)["merged"] != true {
		t.Fatalf("segundo merge no plegó: %s", rec.Body.String())
	}
	rec = do(t, h, jar, http.MethodGet, "/api/cart", nil)
	items, _ := decode(t, rec)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["qty"].(float64) != 6 {
		t.Fatalf("las unidades del segundo ciclo quedaron varadas: %s", rec.Body.String())
	}
}

func TestAdminProductLifecycle(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "clave-test")
	t.Setenv("ADMIN_ALLOWED_EMAILS", "admin@test.local")
	t.Setenv("JWT_ADMIN_SECRET", "secreto-test")

	h, _, _ := newTestServer()
	jar := map[string]*http.Cookie{}

	// sin token no hay escritura de catálogo
	rec := do(t, h, jar, http.MethodPost, "/api/products", map[string]any{"title": "Remera"})
	if rec.Code != 401 {
		t.Fatalf("sin token: code = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"email":"admin@test.local"}`))
	req.Header.Set("X-Admin-Key", "clave-test")
	loginRec := httptest.NewRecorder()
	h.ServeHTTP(loginRec, req)
	if loginRec.Code != 200 {
		t.Fatalf("login admin: code = %d, body = %s", loginRec.Code, loginRec.Body.String())
	}
	token, _ := decode(t, loginRec)["token"].(string)
	if token == "" {
		t.Fatal("login sin token")
	}

	doAdmin := func(method, path string, body any) *httptest.ResponseRecorder {
		var rd *bytes.Reader
		if body != nil {
			b, _ := json.Marshal(body)
			rd = bytes.NewReader(b)
		} else {
			rd = bytes.NewReader(nil)
		}
		req := httptest.NewRequest(method, path, rd)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec = doAdmin(http.MethodPost, "/api/products", map[string]any{
		"title": "Remera", "slug": "remera", "base_price": 1200, "active": true,
		"axes":   map[string]any{"sizes": []string{"S", "M"}, "colors": []string{"Rojo"}},
		"stocks": map[string]int{"S|Rojo|": 5},
	})
	if rec.Code != 200 {
		t.Fatalf("alta de producto: code = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, jar, http.MethodGet, "/api/products/remera/matrix", nil)
	if rec.Code != 200 {
		t.Fatalf("matrix: code = %d", rec.Code)
	}
	mv := decode(t, rec)
	keys, _ := mv["keys"].([]any)
	if len(keys) != 2 {
		t.Fatalf("keys = %v", keys)
	}
	stocks, _ := mv["stocks"].(map[string]any)
	if stocks["S|Rojo|"].(float64) != 5 || stocks["M|Rojo|"].(float64) != 0 {
		t.Fatalf("stocks = %v", stocks)
	}

	rec = doAdmin(http.MethodDelete, "/api/products/remera", nil)
	if rec.Code != 200 {
		t.Fatalf("delete: code = %d", rec.Code)
	}
	rec = do(t, h, jar, http.MethodGet, "/api/products/remera", nil)
	if rec.Code != 404 {
		t.Fatalf("tras delete: code = %d", rec.Code)
	}
}

func TestSaveConflictSurfacesKeys(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "clave-test")
	t.Setenv("ADMIN_ALLOWED_EMAILS", "admin@test.local")
	t.Setenv("JWT_ADMIN_SECRET", "secreto-test")

	h, products, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"email":"admin@test.local"}`))
	req.Header.Set("X-Admin-Key", "clave-test")
	loginRec := httptest.NewRecorder()
	h.ServeHTTP(loginRec, req)
	token, _ := decode(t, loginRec)["token"].(string)

	post := func(body any) *httptest.ResponseRecorder {
		b, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewReader(b))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post(map[string]any{
		"title": "Remera", "slug": "remera", "base_price": 1200, "active": true,
		"axes": map[string]any{"sizes": []string{"S", "M"}},
	})
	if rec.Code != 200 {
		t.Fatalf("alta: %d %s", rec.Code, rec.Body.String())
	}

	// un shopper agrega la variante M al carrito
	p, err := products.FindBySlug(context.Background(), "remera")
	if err != nil {
		t.Fatal(err)
	}
	var mID uuid.UUID
	for _, v := range p.Variants {
		if v.Key == "M||" {
			mID = v.ID
		}
	}
	jar := map[string]*http.Cookie{}
	rec = do(t, h, jar, http.MethodPost, "/api/cart", map[string]any{
		"product_id": p.ID.String(), "variant_id": mID.String(),
	})
	if rec.Code != 200 {
		t.Fatalf("add: %d", rec.Code)
	}

	// achicar la matriz choca con la línea viva
	rec = post(map[string]any{
		"title": "Remera Renombrada", "slug": "remera", "base_price": 9999, "active": true,
		"axes": map[string]any{"sizes": []string{"S"}},
	})
	if rec.Code != 409 {
		t.Fatalf("conflicto esperado: code = %d, body = %s", rec.Code, rec.Body.String())
	}
	b := decode(t, rec)
	if b["error"] != "variant_conflict" || b["cart_lines"].(float64) != 1 {
		t.Fatalf("body conflicto = %v", b)
	}

	// el 409 deja todo intacto, incluidos los campos base del producto
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/api/products/remera", nil))
	after := decode(t, getRec)
	if after["Title"] != "Remera" || after["BasePrice"].(float64) != 1200 {
		t.Fatalf("el guardado bloqueado persistió campos base: %v %v", after["Title"], after["BasePrice"])
	}

	// con force el cascadeo es explícito y reportado
	rec = post(map[string]any{
		"title": "Remera", "slug": "remera", "base_price": 1200, "active": true,
		"axes": map[string]any{"sizes": []string{"S"}}, "force": true,
	})
	if rec.Code != 200 {
		t.Fatalf("force: code = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode(t, rec)
	if res["removed_cart_lines"].(float64) != 1 {
		t.Fatalf("resultado force = %v", res)
	}

	rec = do(t, h, jar, http.MethodGet, "/api/cart", nil)
	if items, _ := decode(t, rec)["items"].([]any); len(items) != 0 {
		t.Fatalf("la línea cascadeada sobrevivió: %v", items)
	}
}
