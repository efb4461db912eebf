package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tu-usuario/facturacion-sri/internal/application/billing"
	"github.com/tu-usuario/facturacion-sri/internal/infrastructure/postgres"
	infrasri "github.com/tu-usuario/facturacion-sri/internal/infrastructure/sri"
	"github.com/tu-usuario/facturacion-sri/internal/infrastructure/sri/signer"
	httpRouter "github.com/tu-usuario/facturacion-sri/internal/interfaces/http"
	"github.com/tu-usuario/facturacion-sri/pkg/config"
	"github.com/tu-usuario/facturacion-sri/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("sri_env", cfg.SRI.AppEnv).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	invoiceRepo := postgres.NewInvoiceRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	emisor := infrasri.Emisor{
		RUC:                  cfg.SRI.RUC,
		RazonSocial:          cfg.SRI.RazonSocial,
		NombreComercial:      cfg.SRI.NombreComercial,
		DirMatriz:            cfg.SRI.DirMatriz,
		DirEstablecimiento:   cfg.SRI.DirEstablecimiento,
		Estab:                cfg.SRI.Estab,
		PtoEmi:               cfg.SRI.PtoEmi,
		ObligadoContabilidad: cfg.SRI.ObligadoContabilidad,
	}

	// Cliente SRI: simulado en dev, SOAP real en test/prod.
	var submitter infrasri.Submitter
	switch cfg.SRI.AppEnv {
	case infrasri.AppEnvTest, infrasri.AppEnvProd:
		cert, err := loadCertificate(cfg.SRI)
		if err != nil {
			log.Fatal().Err(err).Msg("cargar certificado de firma")
		}
		submitter = infrasri.NewSOAPSRIClient(infrasri.SOAPConfig{
			AppEnv:   cfg.SRI.AppEnv,
			Ambiente: cfg.SRI.Ambiente,
			Timeout:  time.Duration(cfg.SRI.TimeoutSeconds) * time.Second,
		}, emisor, signer.NewDigitalSignatureService(), cert)
	default:
		log.Warn().Msg("SRI_ENV=dev: los envíos al SRI se simulan")
		submitter = infrasri.NewSimulatedSubmitter()
	}

	assembleUC := billing.NewAssembleInvoiceUseCase(txRunner, invoiceRepo, billing.EmisorConfig{
		RUC:      cfg.SRI.RUC,
		Estab:    cfg.SRI.Estab,
		PtoEmi:   cfg.SRI.PtoEmi,
		Ambiente: cfg.SRI.Ambiente,
		Currency: "USD",
	})

	orchestrator := billing.NewSubmissionOrchestrator(invoiceRepo, submitter, billing.OrchestratorConfig{
		MaxReintentos: cfg.SRI.MaxReintentos,
		SubmitTimeout: 30 * time.Second,
		StuckTimeout:  time.Duration(cfg.SRI.StuckTimeoutSec) * time.Second,
	}, log)

	scheduler := billing.NewRetryScheduler(invoiceRepo, orchestrator, billing.SchedulerConfig{
		Interval:      time.Duration(cfg.SRI.RetryIntervalSec) * time.Second,
		BackoffBase:   time.Duration(cfg.SRI.BackoffBaseSec) * time.Second,
		BackoffMax:    time.Duration(cfg.SRI.BackoffMaxSec) * time.Second,
		MaxReintentos: cfg.SRI.MaxReintentos,
		StuckTimeout:  time.Duration(cfg.SRI.StuckTimeoutSec) * time.Second,
	}, log)

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	go scheduler.Run(schedulerCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Billing:   httpRouter.NewBillingHandler(assembleUC, orchestrator, invoiceRepo),
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

func loadCertificate(cfg config.SRIConfig) (tls.Certificate, error) {
	lower := strings.ToLower(cfg.CertPath)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return signer.LoadFromP12(cfg.CertPath, cfg.CertPassword)
	}
	return signer.LoadFromPEM(cfg.CertPath, cfg.CertKeyPath)
}
