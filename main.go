package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Tutortoise/image-similarity/config"
	"github.com/Tutortoise/image-similarity/embeddings"
	"github.com/Tutortoise/image-similarity/models"
	"github.com/Tutortoise/image-similarity/similarity"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type options struct {
	gt               string
	test             string
	metric           string
	model            string
	device           string
	outputJSON       string
	destination      string
	destinationsPath string
	modelsDir        string
	debug            bool
}

func parseFlags(args []string, env config.Runtime) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("image-similarity", pflag.ContinueOnError)
	fs.StringVar(&opts.gt, "gt", "", "Path to ground-truth image")
	fs.StringVar(&opts.test, "test", "", "Path to test image")
	fs.StringVar(&opts.metric, "metric", string(models.MetricSiglip), "Similarity metric to use (siglip, ssim, both)")
	fs.StringVar(&opts.model, "model", similarity.DefaultModel, "Model id of the SigLIP vision tower")
	fs.StringVar(&opts.device, "device", "", "Inference device (e.g. 'cuda', 'cuda:1', 'cpu'); default auto-detect")
	fs.StringVar(&opts.outputJSON, "output_json", "", "Optional path to write scores as JSON")
	fs.StringVar(&opts.destination, "destination", "", "Score --test against the ground truth of this destination label")
	fs.StringVar(&opts.destinationsPath, "destinations", env.DestinationsPath, "JSON file mapping destination labels to ground-truth images")
	fs.StringVar(&opts.modelsDir, "models-dir", env.ModelsDir, "Directory holding exported models")
	fs.BoolVar(&opts.debug, "debug", env.Debug, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var missing []string
	if opts.test == "" {
		missing = append(missing, "--test")
	}
	if opts.gt == "" && opts.destination == "" {
		missing = append(missing, "--gt")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("the following arguments are required: %s", strings.Join(missing, ", "))
	}

	// Destination scoring always blends both metrics and returns a single
	// percentage, so the path-based flags cannot apply to it.
	if opts.destination != "" {
		var conflicts []string
		for _, name := range []string{"gt", "metric", "output_json"} {
			if fs.Changed(name) {
				conflicts = append(conflicts, "--"+name)
			}
		}
		if len(conflicts) > 0 {
			return nil, fmt.Errorf("--destination cannot be combined with %s", strings.Join(conflicts, ", "))
		}
	}
	return opts, nil
}

func loadDestinations(opts *options, env config.Runtime) (*config.Destinations, error) {
	if opts.destinationsPath != "" {
		return config.LoadDestinations(opts.destinationsPath)
	}
	env.ModelsDir = opts.modelsDir
	return config.DefaultDestinations(env.GroundTruthDir()), nil
}

func run(ctx context.Context, opts *options, env config.Runtime, embedder similarity.Embedder) error {
	metric, err := models.ParseMetric(opts.metric)
	if err != nil {
		return err
	}

	scorerOpts := []similarity.Option{
		similarity.WithEmbedder(embedder),
		similarity.WithStructural(similarity.SSIM),
		similarity.WithModel(opts.model),
	}

	if opts.destination != "" {
		dest, err := loadDestinations(opts, env)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(opts.test)
		if err != nil {
			return fmt.Errorf("read test image: %w", err)
		}

		scorer := similarity.New(append(scorerOpts, similarity.WithDestinations(dest))...)
		pct, err := scorer.ScoreFromBytes(ctx, data, opts.destination)
		if err != nil {
			return err
		}
		fmt.Printf("SIMILARITY_PERCENTAGE similarity: %.4f\n", pct)
		return nil
	}

	scorer := similarity.New(scorerOpts...)
	scores, err := scorer.Run(ctx, opts.gt, opts.test, metric, opts.outputJSON)
	if err != nil {
		return err
	}

	for _, s := range scores.Entries() {
		fmt.Printf("%s similarity: %.4f\n", strings.ToUpper(s.Name), s.Value)
	}
	if opts.outputJSON != "" {
		fmt.Printf("Saved JSON to: %s\n", opts.outputJSON)
	}
	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	env := config.FromEnv()
	opts, err := parseFlags(os.Args[1:], env)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	if opts.debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder := &embeddings.ONNXEmbedder{
		ModelsDir:   opts.modelsDir,
		LibraryPath: env.RuntimeLibrary,
		Device:      opts.device,
	}

	err = run(ctx, opts, env, embedder)
	embeddings.DestroyEnvironment()
	if err != nil {
		stop()
		log.Fatalf("Failed to compare images: %v", err)
	}
}
