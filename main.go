// Command curbsight monitors one video feed for traffic violations. It
// pairs decoded frames with tracked detections arriving over UDP, runs
// the violation pipeline, records evidence clips, and serves a status
// API. Violations are persisted to sqlite and optionally published to
// Kafka, with clips archived to object storage.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/curbsight/curbsight/internal/api"
	"github.com/curbsight/curbsight/internal/archive"
	"github.com/curbsight/curbsight/internal/config"
	"github.com/curbsight/curbsight/internal/eventbus"
	"github.com/curbsight/curbsight/internal/ingest"
	"github.com/curbsight/curbsight/internal/media"
	"github.com/curbsight/curbsight/internal/store"
	"github.com/curbsight/curbsight/internal/traffic"
	"github.com/curbsight/curbsight/internal/traffic/clip"
)

var configPath = flag.String("config", "site.json", "Site configuration file")

func main() {
	flag.Parse()

	site, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load site config: %v", err)
	}
	svc, err := config.LoadService()
	if err != nil {
		log.Fatalf("failed to load service config: %v", err)
	}
	if site.GetVideoPath() == "" {
		log.Fatal("video_path is required")
	}

	source, err := media.OpenVideo(site.GetVideoPath(), site.GetVideoFPS())
	if err != nil {
		log.Fatalf("failed to open video source: %v", err)
	}
	info := source.Info()
	log.Printf("opened %s: %dx%d @ %.1f fps, %d frames",
		site.GetVideoPath(), info.Width, info.Height, info.FPS, info.TotalFrames)

	var st *store.Store
	if svc.DBPath != "" {
		st, err = store.Open(svc.DBPath)
		if err != nil {
			log.Fatalf("failed to open violation store: %v", err)
		}
		defer st.Close()
	}

	var pub *eventbus.Publisher
	if len(svc.KafkaBrokers) > 0 {
		pub, err = eventbus.NewPublisher(svc.KafkaBrokers, svc.KafkaTopic)
		if err != nil {
			log.Fatalf("failed to connect violation publisher: %v", err)
		}
		defer pub.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var uploader *archive.Uploader
	if svc.MinioEndpoint != "" {
		uploader, err = archive.NewUploader(ctx, archive.Options{
			Endpoint:  svc.MinioEndpoint,
			AccessKey: svc.MinioAccessKey,
			SecretKey: svc.MinioSecretKey,
			Bucket:    svc.MinioBucket,
			UseSSL:    svc.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to connect clip archive: %v", err)
		}
	}

	zones := traffic.NewZoneIndex(site.GetZones(), info.Width, info.Height)

	classifier := traffic.NewBehaviorClassifier(
		site.BehaviorConfig(info.Width, info.Height, info.FPS), zones, nil)

	var estimator *traffic.SpeedEstimator
	if site.GetEnableSpeedEstimation() {
		src, dst := site.CalibrationPoints(info.Width, info.Height)
		estimator, err = traffic.NewSpeedEstimator(src, dst, info.FPS)
		if err != nil {
			log.Fatalf("failed to build speed estimator: %v", err)
		}
	}

	lineStart, lineEnd := site.CountingLine(info.Width, info.Height)
	counter := traffic.NewLineCounter(lineStart, lineEnd)

	onViolation := func(v traffic.Violation) {
		log.Printf("violation: %s track=%d frame=%d speed=%.1f",
			v.Type, v.TrackID, v.FrameIndex, v.SpeedKMH)
		if st != nil {
			if _, err := st.InsertViolation(ctx, v, ""); err != nil {
				log.Printf("failed to persist violation: %v", err)
			}
		}
		if pub != nil {
			if err := pub.Publish(v); err != nil {
				log.Printf("failed to publish violation: %v", err)
			}
		}
	}

	var recorder traffic.ClipRecorder
	if site.GetEnableRecording() {
		factory, err := media.FileSinkFactory(site.GetOutputDir(), info)
		if err != nil {
			log.Fatalf("failed to prepare clip output: %v", err)
		}
		onComplete := func(clipID, path string, v traffic.Violation) {
			if st != nil {
				if err := st.SetClipPath(context.Background(), v, path); err != nil {
					log.Printf("failed to link clip %s: %v", clipID, err)
				}
			}
			if uploader != nil {
				go func() {
					if _, err := uploader.UploadClip(context.Background(), path); err != nil {
						log.Printf("failed to archive clip %s: %v", clipID, err)
					}
				}()
			}
		}
		recorder = clip.NewRecorder(info.FPS,
			site.GetPreEventSeconds(), site.GetPostEventSeconds(), factory, onComplete)
	}

	// The detection collaborator streams tracked boxes over UDP; the
	// pipeline pulls them per frame index through the adapter.
	var pipeline *traffic.Pipeline
	listener := ingest.NewListener(ingest.ListenerConfig{
		Address: svc.IngestAddr,
		OnEvent: func(v traffic.Violation) {
			pipeline.ReportDetectorViolation(v)
		},
	})
	detector := ingest.NewDetector(listener, 0)

	pipeline, err = traffic.NewPipeline(
		traffic.PipelineConfig{Loop: site.GetLoop()},
		traffic.PipelineDeps{
			Source:      source,
			Detector:    detector,
			Estimator:   estimator,
			Classifier:  classifier,
			Counter:     counter,
			Recorder:    recorder,
			OnViolation: onViolation,
		})
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer pipeline.Close()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("ingest listener failed: %v", err)
			stop()
		}
		log.Print("ingest listener terminated")
	}()

	if err := pipeline.Start(); err != nil {
		log.Fatalf("failed to start pipeline: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		if st != nil && svc.EnableSQLConsole {
			if err := st.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to mount sql console: %v", err)
			}
		}

		apiMux := api.NewServer(pipeline, st, zones).ServeMux()
		mux.Handle("/", apiMux)

		server := &http.Server{
			Addr:    svc.HTTPAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("status API listening on %s", svc.HTTPAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	pipeline.Stop()
	wg.Wait()
	log.Printf("graceful shutdown complete")
}
