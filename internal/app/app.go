package app

import (
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/facuvega/vitrina/internal/adapters/httpserver"
	"github.com/facuvega/vitrina/internal/adapters/notify"
	"github.com/facuvega/vitrina/internal/adapters/repo/postgres"
	"github.com/facuvega/vitrina/internal/domain"
	"github.com/facuvega/vitrina/internal/usecase"
)

type App struct {
	DB          *gorm.DB
	ProductUC   *usecase.ProductUC
	CartUC      *usecase.CartUC
	Customers   domain.CustomerRepo
	OAuthConfig *oauth2.Config
	Notifier    *notify.Telegram
}

func NewApp(db *gorm.DB) (*App, error) {
	prodRepo := postgres.NewProductRepo(db)
	cartRepo := postgres.NewCartRepo(db)
	custRepo := postgres.NewCustomerRepo(db)

	var oauthCfg *oauth2.Config
	googleID := os.Getenv("GOOGLE_CLIENT_ID")
	googleSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if googleID != "" && googleSecret != "" {
		oauthCfg = &oauth2.Config{
			ClientID:     googleID,
			ClientSecret: googleSecret,
			RedirectURL:  baseURL + "/auth/google/callback",
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}

	return &App{
		DB:          db,
		ProductUC:   &usecase.ProductUC{Products: prodRepo},
		CartUC:      &usecase.CartUC{Carts: cartRepo, Products: prodRepo},
		Customers:   custRepo,
		OAuthConfig: oauthCfg,
		Notifier:    notify.NewTelegram(),
	}, nil
}

func (a *App) HTTPHandler() http.Handler {
	return httpserver.New(a.ProductUC, a.CartUC, a.Customers, a.OAuthConfig, a.Notifier)
}

func (a *App) MigrateAndSeed() error {
	if err := a.DB.AutoMigrate(
		&domain.Product{}, &domain.Variant{}, &domain.Image{},
		&domain.Cart{}, &domain.CartItem{}, &domain.CartMerge{},
		&domain.Customer{},
	); err != nil {
		return err
	}

	// unicidad de tupla por producto: la clave canónica es la llave
	// natural, la identidad uuid es subrogada
	_ = a.DB.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_variants_product_key ON variants (product_id, key)").Error

	// una línea por (carrito, producto, variante-o-nula); variant_id
	// admite NULL así que el índice único va por COALESCE
	_ = a.DB.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_items_line ON cart_items (cart_id, product_id, COALESCE(variant_id, '00000000-0000-0000-0000-000000000000'::uuid))").Error

	_ = a.DB.Exec("CREATE INDEX IF NOT EXISTS idx_cart_items_variant_id ON cart_items (variant_id)").Error
	_ = a.DB.Exec("CREATE INDEX IF NOT EXISTS idx_variants_product_id ON variants (product_id)").Error

	return nil
}
