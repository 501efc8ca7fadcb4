// Package bullworker is a Go worker for media generation jobs queued in
// Redis by a BullMQ producer. A worker serves one job type, claims jobs of
// that type from the shared wait list, runs an executor to produce an
// artifact, stores it in R2 or a local directory and settles the job with a
// result record the producer can read back.
//
// bullworker is built from small pieces:
//   - queue: claim, progress and settle against the BullMQ key layout
//   - core: the engine and the single-job worker loop
//   - executor/command: runs an external generator process per job
//   - sink: R2 (S3 compatible) and filesystem artifact storage
//   - notify: webhook and AMQP outcome events
//   - statistics: worker and per-type counters in Redis
//
// # Example
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/BranchIntl/bullworker/config"
//		"github.com/BranchIntl/bullworker/engines"
//	)
//
//	func main() {
//		cfg, err := config.Load("")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		engine, err := engines.NewBullEngine(cfg)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// Exits after the idle threshold or on SIGINT/SIGTERM
//		if err := engine.Run(context.Background()); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// # Custom Executors
//
// Executors receive a Task holding the job payload and a scratch directory
// and return the path of the artifact they wrote:
//
//	type thumbnailer struct{}
//
//	func (thumbnailer) Execute(ctx context.Context, task *core.Task) (*core.Artifact, error) {
//		prompt := task.Payload.String("prompt")
//		if prompt == "" {
//			return nil, errors.ErrMissingInput
//		}
//		task.ReportProgress(50)
//		path := filepath.Join(task.ScratchDir, "output.png")
//		// ... render to path
//		return &core.Artifact{Path: path}, nil
//	}
//
//	engine.Register("generate:thumbnail", thumbnailer{})
//
// # Testing
//
// For integration testing against Redis, seed a job the way the producer
// does:
//
//	redis-cli HSET bull:ffmpeg-jobs:42 type generate:zimage data '{"prompt":"a cat"}'
//	redis-cli LPUSH bull:ffmpeg-jobs:wait 42
//
// and inspect it with:
//
//	bullworker job 42
//
// # Configuration
//
// Settings come from bullworker.toml, .env files and the environment, in
// increasing precedence. See config.SampleConfig for every option.
package bullworker
