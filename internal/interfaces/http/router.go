package http

import (
	"github.com/gofiber/fiber/v2"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Billing   *BillingHandler
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api/v1")

	// Señal de orden completada (servicio a servicio; idempotente)
	api.Post("/facturacion/ordenes", deps.Billing.OrderCompleted)

	// Consulta de facturas (storefront hace polling del estado)
	api.Get("/facturas/:id", deps.Billing.GetInvoice)
	api.Get("/facturas/:id/estado", deps.Billing.GetStatus)

	// Operación (requiere Bearer Token con rol operador)
	ops := api.Group("/", AuthMiddleware(deps.JWTSecret), RequireOperador())
	ops.Get("/facturas", deps.Billing.ListByStatus)
	ops.Post("/facturas/:id/reenviar", deps.Billing.Resubmit)
}
