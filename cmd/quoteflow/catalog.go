package main

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/pricing"
)

var catalogPlan string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the pricing catalog and what each plan costs",
	RunE:  runCatalog,
}

func init() {
	catalogCmd.Flags().StringVar(&catalogPlan, "plan", "", "only show this plan code (P1, P2 or P3)")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine := pricing.NewEngine(pricing.LoadCatalog(cfg.Pricing.CatalogPath, logger.Nop()), logger.Nop())
	cat := engine.Catalog()
	out := cmd.OutOrStdout()

	codes := pricing.PlanCodes
	if catalogPlan != "" {
		if _, err := engine.PlanSpec(catalogPlan); err != nil {
			return err
		}
		codes = []string{catalogPlan}
	} else {
		fmt.Fprintf(out, "Catalog v%d (%s) from %s\n\n", cat.Version, cat.Currency, cat.Source)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tUNIT\tLOW\tHIGH")
		for _, it := range cat.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.ItemKey, it.Name, it.Unit, amount(it.Low), amount(it.High))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, code := range codes {
		if err := printPlan(out, engine, code, cfg.Pricing.ContingencyPercent, cfg.Pricing.TaxPercent); err != nil {
			return err
		}
	}
	return nil
}

func printPlan(out io.Writer, engine *pricing.Engine, code string, contingency, tax float64) error {
	spec, err := engine.PlanSpec(code)
	if err != nil {
		return err
	}
	items, err := engine.QuoteItems(code)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s %s\n", spec.Code, spec.Name)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tITEM\tQTY\tSUBTOTAL")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s - %s\n", it.Category, it.ItemName, humanize.Ftoa(it.Qty), it.Unit, amount(it.SubtotalLow), amount(it.SubtotalHigh))
	}
	t := pricing.ComputeTotals(items, contingency, tax)
	fmt.Fprintf(tw, "\tcontingency %s%%\t\t%s\n", humanize.Ftoa(t.ContingencyPercent), amount(t.Contingency))
	fmt.Fprintf(tw, "\ttotal\t\t%s - %s\n", amount(t.GrandLow), amount(t.GrandHigh))
	fmt.Fprintf(tw, "\ttax %s%%\t\t%s - %s\n", humanize.Ftoa(t.TaxPercent), amount(t.TaxLow), amount(t.TaxHigh))
	return tw.Flush()
}

func amount(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}
