package main

import (
	"log"
	"os"

	"dataset-service/internal/config"
	"dataset-service/internal/handlers"
	"dataset-service/internal/metrics"
	"dataset-service/internal/models"
	"dataset-service/internal/repository"
	"dataset-service/internal/services"
	"dataset-service/internal/storage"
	"dataset-service/internal/upload"
	"dataset-service/internal/uploader"
	"dataset-service/internal/yolo"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func main() {
	cfg := InitConfig()
	config.InitLogger(os.Getenv("LOG_FILE"))
	db := ConnectDatabase(cfg)
	MigrateDatabase(db)
	minioClient := InitMinIOClient(cfg)

	datasetRepo := repository.NewDatasetRepository(db)
	imageRepo := repository.NewImageRepository(db)

	sessions := upload.NewManager(cfg.TempDir, cfg.MaxUploadSize, cfg.SessionTTL)
	defer sessions.Close()

	batchUploader := uploader.New(minioClient, cfg.MinioBucket,
		cfg.UploadWorkers, cfg.UploadMaxRetries, cfg.UploadRetryDelay)
	pipelineMetrics := metrics.NewMetrics()

	ingestService := services.NewIngestService(datasetRepo, imageRepo, batchUploader,
		yolo.StructureChecker{}, pipelineMetrics, cfg.StorageOwner)
	datasetService := services.NewDatasetService(datasetRepo, imageRepo, minioClient,
		batchUploader, cfg.MinioBucket)

	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.MaxUploadSize),
	})

	// Register Prometheus metrics endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/datasets")

	uh := handlers.NewUploadHandler(sessions, ingestService, cfg.MaxUploadSize)
	api.Post("/upload/start", uh.StartUpload)
	api.Post("/upload/chunk/:id/:index", uh.UploadChunk)
	api.Post("/upload/complete/:id", uh.CompleteUpload)
	api.Delete("/upload/:id", uh.CancelUpload)

	dh := handlers.NewDatasetHandler(datasetService)
	api.Get("/datasets", dh.ListDatasets)
	api.Get("/datasets/:id", dh.GetDataset)
	api.Delete("/datasets/:id", dh.DeleteDataset)
	api.Get("/datasets/:id/images", dh.ListImages)
	api.Post("/datasets/:id/urls", dh.BatchImageURLs)
	api.Get("/images/:id", dh.GetImage)
	api.Get("/images/:id/url", dh.GetImageURL)
	api.Post("/images/:id/annotations", dh.AddAnnotation)
	api.Delete("/images/:id/annotations/:index", dh.RemoveAnnotation)

	api.Get("/swagger/*", swagger.HandlerDefault)

	// Add Health check endpoint
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	routes := app.GetRoutes()
	log.Println("Registered routes:")
	for _, r := range routes {
		log.Printf("  %s %s\n", r.Method, r.Path)
	}

	port := cfg.AppPort
	if port == "" {
		port = "8080"
		log.Printf("Defaulting to port %s", port)
	}
	log.Printf("Server listening on port %s", port)
	log.Fatal(app.Listen(":" + port))
}

func InitConfig() *config.Config {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	return cfg
}

func ConnectDatabase(cfg *config.Config) *gorm.DB {
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	return db
}

func MigrateDatabase(db *gorm.DB) {
	err := db.AutoMigrate(&models.Dataset{}, &models.Image{})
	if err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}
}

func InitMinIOClient(cfg *config.Config) *minio.Client {
	minioClient, err := storage.NewMinioClient(cfg)
	if err != nil {
		log.Fatalf("MinIO client initialization failed: %v", err)
	}
	return minioClient
}
