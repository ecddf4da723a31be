// Command plan runs one optimization pass offline. It reads a JSON request
// from -in (or stdin) and prints the result. No cart store, geocoder or AI
// model is used, so the request must carry its items and an origin.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/obs"
	"github.com/noah-isme/shopping-optimizer/internal/optimizer"
	"github.com/noah-isme/shopping-optimizer/internal/promo"
	"github.com/noah-isme/shopping-optimizer/internal/route"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

func main() {
	_ = godotenv.Load()

	in := flag.String("in", "", "request JSON file (default stdin)")
	storesFile := flag.String("stores", os.Getenv("STORES_FILE"), "store catalog JSON file")
	policyName := flag.String("policy", "round_robin", "assignment policy")
	promoCodes := flag.String("promos", os.Getenv("PROMO_CODES"), "promo codes as CODE:bps,...")
	speed := flag.Float64("speed", 5, "walking speed in km/h")
	pretty := flag.Bool("pretty", true, "indent output")
	flag.Parse()

	logger := obs.NewLogger("console", "info")
	if err := run(context.Background(), logger, options{
		in:       *in,
		stores:   *storesFile,
		policy:   *policyName,
		promos:   *promoCodes,
		speedKmH: *speed,
		pretty:   *pretty,
	}, os.Stdin, os.Stdout); err != nil {
		code, _ := common.Classify(err)
		logger.Fatal().Err(err).Str("code", code).Msg("plan failed")
	}
}

type options struct {
	in       string
	stores   string
	policy   string
	promos   string
	speedKmH float64
	pretty   bool
}

func run(ctx context.Context, logger zerolog.Logger, opts options, stdin io.Reader, stdout io.Writer) error {
	src := stdin
	if opts.in != "" {
		f, err := os.Open(opts.in)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	var req optimizer.Request
	dec := json.NewDecoder(src)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return err
	}
	if err := common.Validate(req); err != nil {
		return err
	}

	catalog := stores.DefaultCatalog()
	if opts.stores != "" {
		var err error
		if catalog, err = stores.LoadCatalog(opts.stores); err != nil {
			return err
		}
	}
	policy, err := stores.ParsePolicy(opts.policy, catalog.Prices())
	if err != nil {
		return err
	}
	book, err := promo.ParseBook(opts.promos)
	if err != nil {
		return err
	}

	svc := &optimizer.Service{
		Catalog:  catalog,
		Assigner: stores.NewAssigner(policy),
		Router:   route.Optimizer{SpeedKmH: opts.speedKmH},
		Promos:   book,
		Logger:   logger,
	}
	// Anonymous pass: items come only from the request.
	req.UserID = ""
	res, err := svc.Optimize(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}
