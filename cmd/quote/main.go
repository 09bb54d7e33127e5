// Command quote prices a product configuration against a YAML catalog
// fixture without Telegram, PostgreSQL or Redis.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"printshop-pricing/internal/pricing"
	"printshop-pricing/internal/quote"
	"printshop-pricing/internal/report"
	"printshop-pricing/internal/storage/fixture"
	"printshop-pricing/pkg/logger"
)

// choices collects repeated -choose matrix.attribute=value flags.
type choices map[string]map[string]string

func (c choices) String() string {
	var parts []string
	for m, attrs := range c {
		for a, v := range attrs {
			parts = append(parts, fmt.Sprintf("%s.%s=%s", m, a, v))
		}
	}
	return strings.Join(parts, ",")
}

func (c choices) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || value == "" {
		return errors.New("expected matrix.attribute=value")
	}
	matrixID, attributeID, ok := strings.Cut(key, ".")
	if !ok || matrixID == "" || attributeID == "" {
		return errors.New("expected matrix.attribute=value")
	}
	if c[matrixID] == nil {
		c[matrixID] = map[string]string{}
	}
	c[matrixID][attributeID] = value
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "quote:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)

	sel := choices{}
	var (
		fixturePath = fs.String("fixture", "catalog.yaml", "YAML catalog fixture")
		productID   = fs.String("product", "", "product id; lists products when empty")
		qty         = fs.Int("qty", 1, "quantity")
		width       = fs.Float64("width", 0, "width in the product dimension unit")
		height      = fs.Float64("height", 0, "height in the product dimension unit")
		speed       = fs.Float64("speed", 0, "production speed surcharge in percent")
		discount    = fs.Float64("discount", 0, "user discount in percent")
		preview     = fs.Bool("preview", false, "price like the interactive preview (no extrapolation)")
		asJSON      = fs.Bool("json", false, "print the full result as JSON")
		exportPath  = fs.String("export", "", "write the product price matrix to this xlsx file")
		logLevel    = fs.String("log-level", "warn", "log level")
	)
	fs.Var(sel, "choose", "option as matrix.attribute=value, repeatable")

	if err := fs.Parse(args); err != nil {
		return err
	}

	log, err := logger.New(*logLevel, false)
	if err != nil {
		return err
	}
	defer log.Sync()

	src, err := fixture.Load(*fixturePath)
	if err != nil {
		return err
	}

	if *productID == "" {
		for _, id := range src.Products() {
			fmt.Fprintln(stdout, id)
		}
		return nil
	}

	ctx := context.Background()
	svc := quote.NewService(src, src, src, nil, quote.Config{ExtrapolateAboveMax: true}, log)

	if *exportPath != "" {
		return exportMatrix(ctx, svc, *productID, *exportPath)
	}

	req := quote.Request{
		Quantity:               *qty,
		Selections:             sel,
		ProductionSpeedPercent: *speed,
		UserDiscountPercent:    *discount,
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			req.Width = width
		case "height":
			req.Height = height
		}
	})

	price := svc.CalculatePrice
	if *preview {
		price = svc.Preview
	}
	res, err := price(ctx, *productID, req)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(stdout, res)
	return nil
}

func exportMatrix(ctx context.Context, svc *quote.Service, productID, path string) error {
	cat, err := svc.Catalog(ctx, productID)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.ExportMatrix(f, cat); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printResult(w io.Writer, res pricing.Result) {
	if res.Status != pricing.StatusOK {
		fmt.Fprintf(w, "%s: %s\n", res.Status, res.Reason)
		return
	}
	for _, l := range res.Lines {
		fmt.Fprintf(w, "%-12s %-10s %10s\n", l.MatrixID, l.Kind, l.Amount.StringFixed(2))
	}
	fmt.Fprintf(w, "net   %s %s\n", res.Net.StringFixed(2), res.Currency)
	fmt.Fprintf(w, "vat   %s %s\n", res.VAT.StringFixed(2), res.Currency)
	fmt.Fprintf(w, "gross %s %s\n", res.Gross.StringFixed(2), res.Currency)
	if res.Fallback {
		fmt.Fprintln(w, "(static product price)")
	}
}
