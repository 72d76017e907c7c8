package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/chopchop-backend/config"
	"github.com/yeremiapane/chopchop-backend/controllers"
	"github.com/yeremiapane/chopchop-backend/live"
	"github.com/yeremiapane/chopchop-backend/middlewares"
	"github.com/yeremiapane/chopchop-backend/services"
	"gorm.io/gorm"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Config      *config.Config
	DB          *gorm.DB
	Store       *services.OrderStore
	Sync        *services.OrderSyncService
	Queries     *services.OrderQueryService
	Reconciler  *services.OrderReconciler
	Restaurants controllers.RestaurantDirectory
	Upstream    controllers.StatusPusher
	Hub         *live.Hub
}

func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORS(cfg.CORSOrigins))

	// Inisialisasi controller
	healthCtrl := controllers.NewHealthController(deps.DB)
	webhookCtrl := controllers.NewWebhookController(deps.Sync)
	syncCtrl := controllers.NewSyncController(deps.Reconciler)
	orderCtrl := controllers.NewOrderController(deps.Sync, deps.Queries)
	vendorCtrl := controllers.NewVendorController(deps.Store, deps.Sync, deps.Upstream, []byte(cfg.JWTSecret), cfg.TokenTTL)
	adminCtrl := controllers.NewAdminController(deps.Store)
	restaurantCtrl := controllers.NewRestaurantController(deps.Restaurants)
	liveCtrl := controllers.NewLiveController(deps.Hub, deps.Queries)

	r.GET("/ping", healthCtrl.Ping)

	api := r.Group("/api")
	api.GET("/health", healthCtrl.Health)

	// ----------------------------------------------------------------
	//                      VENDOR PLATFORM
	// ----------------------------------------------------------------
	api.Any("/webhooks/menuverse-order-update",
		middlewares.AllowMethods(http.MethodPost),
		middlewares.WebhookAuth(cfg.WebhookAPIKey),
		middlewares.WebhookRateLimiter(cfg.WebhookRatePerSecond, cfg.WebhookBurst),
		webhookCtrl.MenuverseOrderUpdate,
	)
	api.Any("/sync-orders",
		middlewares.AllowMethods(http.MethodGet, http.MethodPost),
		syncCtrl.SyncOrders,
	)

	// ----------------------------------------------------------------
	//                      CUSTOMER
	// ----------------------------------------------------------------
	public := api.Group("/")
	public.Use(middlewares.NewRateLimiter(120, time.Minute).RateLimit())
	{
		public.POST("/orders", orderCtrl.PlaceOrder)
		public.GET("/orders", orderCtrl.ListOrders)
		public.GET("/orders/grouped", orderCtrl.GroupedOrders)
		public.GET("/orders/active", orderCtrl.ActiveOrders)
		public.GET("/orders/completed", orderCtrl.CompletedOrders)
		public.GET("/orders/:orderId", orderCtrl.GetOrder)
		public.GET("/orders/:orderId/tracking", orderCtrl.GetTracking)
		public.POST("/orders/:orderId/payment", orderCtrl.ConfirmPayment)

		public.GET("/restaurants", restaurantCtrl.ListRestaurants)
		public.GET("/restaurants/:id", restaurantCtrl.GetRestaurant)
		public.GET("/restaurants/:id/menu", restaurantCtrl.GetMenu)
	}

	// ----------------------------------------------------------------
	//                      VENDOR DASHBOARD
	// ----------------------------------------------------------------
	api.POST("/vendors/login", middlewares.NewRateLimiter(10, time.Minute).RateLimit(), vendorCtrl.Login)

	vendor := api.Group("/vendors/:vendorId")
	vendor.Use(middlewares.VendorAuth([]byte(cfg.JWTSecret)))
	{
		vendor.GET("/orders", vendorCtrl.ListOrders)
		vendor.PATCH("/orders/:orderId/status", vendorCtrl.UpdateOrderStatus)
	}

	admin := api.Group("/admin")
	admin.Use(middlewares.AdminAuth(cfg.AdminAPIKey))
	{
		admin.POST("/eateries", adminCtrl.CreateEatery)
		admin.GET("/eateries", adminCtrl.ListEateries)
	}

	// WebSocket endpoint
	r.GET("/ws/orders", liveCtrl.OrderUpdates)

	return r
}
